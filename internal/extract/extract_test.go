package extract

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/ai"
)

type scriptedCompleter struct {
	reply    func(prompt string) (string, error)
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *scriptedCompleter) Name() string {
	return "scripted"
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (*ai.Completion, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	text, err := s.reply(prompt)
	if err != nil {
		return nil, err
	}
	return &ai.Completion{Text: text, TotalTokens: 1}, nil
}

func segmentOf(prompt string) string {
	idx := strings.LastIndex(prompt, "Input: ")
	return strings.TrimSuffix(prompt[idx+len("Input: "):], "\nOutput: ")
}

func TestLookup(t *testing.T) {
	require.Equal(t, []string{"info_schema", "medical_event_schema", "person_schema"}, Names())
	s, err := Lookup("person_schema")
	require.NoError(t, err)
	require.Equal(t, "person", s.ID)
	_, err = Lookup("nope")
	require.Error(t, err)
}

func TestBuildPromptDescribesSchema(t *testing.T) {
	p := BuildPrompt(infoSchema, "公司停牌")
	require.Contains(t, p, "info: { // ")
	require.Contains(t, p, " company_name: Array<string> // 公告涉及的公司名称")
	require.Contains(t, p, `Output: <json>{"info":{"day":["1天"]}}</json>`)
	require.True(t, strings.HasSuffix(p, "Input: 公司停牌\nOutput: "))

	p = BuildPrompt(personSchema, "x")
	require.Contains(t, p, "person: Array<{ // ")
	require.Contains(t, p, `Output: <json>{"person":[{"sex":"男"}]}</json>`)
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want interface{}
		ok   bool
	}{
		{name: "tagged", raw: `here <json>{"a":1}</json>`, want: map[string]interface{}{"a": float64(1)}, ok: true},
		{name: "fenced", raw: "```json\n[1,2]\n```", want: []interface{}{float64(1), float64(2)}, ok: true},
		{name: "bare", raw: `result: {"a":"b"} trailing`, want: map[string]interface{}{"a": "b"}, ok: true},
		{name: "skips broken brace", raw: `{oops} then {"a":2}`, want: map[string]interface{}{"a": float64(2)}, ok: true},
		{name: "none", raw: "no json here", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOutput(tt.raw)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSegment(t *testing.T) {
	require.Equal(t, []string{""}, Segment("", 10))
	require.Equal(t, []string{"ab\ncd"}, Segment("ab\ncd", 10))
	require.Equal(t, []string{"aaaa", "bbbb", "cc"}, Segment("aaaa\nbbbb\ncc", 6))
	require.Equal(t, []string{"toolongline", "x"}, Segment("toolongline\nx", 4))
	require.Equal(t, []string{"一二三", "四五"}, Segment("一二三\n四五", 4))
}

func TestExtractParsed(t *testing.T) {
	c := &scriptedCompleter{reply: func(prompt string) (string, error) {
		return `<json>{"person":[{"name":"陈家俊","sex":"男"}]}</json>`, nil
	}}
	res, err := NewExtractor(c, 2, 4000).Extract(context.Background(), personSchema, "陈家俊先生辞职")
	require.NoError(t, err)
	require.True(t, res.Parsed)
	require.Empty(t, res.Raw)
	require.Equal(t, map[string]interface{}{
		"person": []interface{}{map[string]interface{}{"name": "陈家俊", "sex": "男"}},
	}, res.Data)
}

func TestExtractFallsBackToRawText(t *testing.T) {
	replies := []string{"I could not find anything.", `<json>{"info":{}}</json>`}
	for _, reply := range replies {
		reply := reply
		c := &scriptedCompleter{reply: func(string) (string, error) { return reply, nil }}
		res, err := NewExtractor(c, 2, 4000).Extract(context.Background(), infoSchema, "text")
		require.NoError(t, err)
		require.False(t, res.Parsed)
		require.Nil(t, res.Data)
		require.Equal(t, reply, res.Raw)
	}
}

func TestExtractKeepsSegmentOrderWithBoundedConcurrency(t *testing.T) {
	text := strings.Join([]string{"s0", "s1", "s2", "s3", "s4", "s5"}, "\n")
	c := &scriptedCompleter{reply: func(prompt string) (string, error) {
		seg := segmentOf(prompt)
		// later segments finish first
		time.Sleep(time.Duration(6-int(seg[1]-'0')) * 5 * time.Millisecond)
		return `<json>{"medical":[{"event":"` + seg + `"}]}</json>`, nil
	}}
	res, err := NewExtractor(c, 2, 2).Extract(context.Background(), medicalEventSchema, text)
	require.NoError(t, err)
	require.Equal(t, 6, res.Segments)
	require.Equal(t, 6, res.TotalTokens)
	require.LessOrEqual(t, c.peak.Load(), int32(2))

	items := res.Data.(map[string]interface{})["medical"].([]interface{})
	var events []string
	for _, item := range items {
		events = append(events, item.(map[string]interface{})["event"].(string))
	}
	require.Equal(t, []string{"s0", "s1", "s2", "s3", "s4", "s5"}, events)
}

func TestExtractRawFallbackKeepsOrder(t *testing.T) {
	c := &scriptedCompleter{reply: func(prompt string) (string, error) {
		return "raw " + segmentOf(prompt), nil
	}}
	res, err := NewExtractor(c, 2, 2).Extract(context.Background(), infoSchema, "a1\nb2\nc3")
	require.NoError(t, err)
	require.Equal(t, "raw a1\nraw b2\nraw c3", res.Raw)
}

func TestExtractPropagatesUpstreamError(t *testing.T) {
	boom := errors.New("boom")
	c := &scriptedCompleter{reply: func(string) (string, error) { return "", boom }}
	_, err := NewExtractor(c, 2, 4000).Extract(context.Background(), infoSchema, "x")
	require.ErrorIs(t, err, boom)
}
