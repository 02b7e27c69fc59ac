package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table maps a task label to the instruction prefix placed in front of user text.
type Table map[string]string

type fileFormat struct {
	PromptText map[string]string `json:"prompt_text" yaml:"prompt_text"`
}

func Default() Table {
	return Table{
		"摘要生成": "请为以下内容生成简洁的摘要：",
		"事件抽取": "请从以下内容中抽取关键事件，按时间顺序列出：",
		"问答":   "请根据以下内容回答问题：",
		"实体抽取": "请从以下内容中抽取人名、机构名、地名等实体：",
		"写作":   "请根据以下要求完成写作：",
	}
}

// Load reads a prompt table from a .json, .yaml or .yml file.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	var f fileFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode prompt yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode prompt json: %w", err)
		}
	}
	if len(f.PromptText) == 0 {
		return nil, fmt.Errorf("prompt_text is empty")
	}
	return Table(f.PromptText), nil
}

// Compose builds the prompt for a task. A known task with a non-empty prefix
// yields "prefix text\n", anything else yields the trimmed text.
func (t Table) Compose(task, text string) string {
	text = strings.TrimSpace(text)
	if prefix, ok := t[task]; ok && prefix != "" {
		return prefix + " " + text + "\n"
	}
	return text
}

func (t Table) Tasks() []string {
	tasks := make([]string, 0, len(t))
	for k := range t {
		tasks = append(tasks, k)
	}
	sort.Strings(tasks)
	return tasks
}
