package extract

import (
	"fmt"
	"sort"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// Example pairs an input fragment with the value that should be extracted.
type Example struct {
	Input  string
	Output string
}

type Text struct {
	ID          string
	Description string
	Examples    []Example
	Many        bool
}

// Object is the extraction target. Many means the document may hold several
// instances and the answer is a list.
type Object struct {
	ID          string
	Description string
	Attributes  []Text
	Examples    []Example
	Many        bool
}

var builtins = map[string]*Object{
	"info_schema":          infoSchema,
	"person_schema":        personSchema,
	"medical_event_schema": medicalEventSchema,
}

// Names lists the built-in schemas, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Lookup(name string) (*Object, error) {
	s, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("schema %q: %w", name, appErr.ErrNotFound)
	}
	return s, nil
}

var infoSchema = &Object{
	ID:          "info",
	Description: "关于临时公告-停牌信息的抽取--包含了公司名称，停牌日期，停牌天数。",
	Attributes: []Text{
		{ID: "company_name", Description: "公告涉及的公司名称", Many: true},
		{ID: "date", Description: "公告涉及的停牌日期", Many: true},
		{
			ID:          "day",
			Description: "公告涉及的停牌天数",
			Examples:    []Example{{Input: "股票将于2021年4月27日停牌1天", Output: "1天"}},
			Many:        true,
		},
	},
}

var personSchema = &Object{
	ID:          "person",
	Description: "关于临时公告-辞职或选举信息的提取--包含了辞职日期，辞职人姓名，辞职人原因，辞去职务，辞职后是否还担任职务，是否持有股份信息，推理出辞职人的性别。",
	Attributes: []Text{
		{ID: "name", Description: "辞职人姓名"},
		{ID: "date", Description: "包含了辞职日期"},
		{ID: "position", Description: "辞去职务"},
		{ID: "reason", Description: "辞职人原因"},
		{ID: "after_position", Description: "辞职后是否还担任职务"},
		{ID: "share", Description: "是否持有股份"},
		{
			ID:          "sex",
			Description: "性别，根据辞职人的姓名称谓推理出性别为男、女或空",
			Examples: []Example{
				{Input: "先生", Output: "男"},
				{Input: "女士", Output: "女"},
				{Input: "博士", Output: ""},
			},
		},
	},
	Many: true,
}

var medicalEventSchema = &Object{
	ID:          "medical",
	Description: "从医疗领域文本中抽取时间time，事件名称event和描述信息description。",
	Attributes: []Text{
		{ID: "time", Description: "事件的发生时间。如20分钟后，30分钟后，2030年11月08日上午8:00等"},
		{ID: "event", Description: "事件的名称。如就诊，体检，药品不良事件，治疗药品不良事件，操作，出院，转归等。"},
		{ID: "description", Description: "事件的具体内容。"},
	},
	Examples: []Example{
		{
			Input:  "该患者于2025年3月19日，因咽喉疼痛来门诊就诊，经诊断为上呼吸道感染。输液50ml时，患者出现恶心，呕吐症状，10分钟后，症状缓解。",
			Output: `[{"time":"2025年3月19日","event":"就诊","description":"咽喉疼痛"},{"time":"","event":"诊断","description":"上呼吸道感染"},{"time":"输液50ml时","event":"药品不良事件","description":"恶心，呕吐症状"},{"time":"10分钟后","event":"转归","description":"症状缓解"}]`,
		},
	},
	Many: true,
}
