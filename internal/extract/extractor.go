package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/docchat/internal/ai"
)

const (
	DefaultConcurrency  = 2
	DefaultSegmentChars = 4000
)

// Result is either the parsed structure (Data) or, when no segment produced
// one, the raw model replies joined in segment order.
type Result struct {
	Data        interface{} `json:"data,omitempty"`
	Raw         string      `json:"raw,omitempty"`
	Parsed      bool        `json:"parsed"`
	Segments    int         `json:"segments"`
	TotalTokens int         `json:"total_tokens"`
}

type Extractor struct {
	completer    ai.ICompleter
	concurrency  int
	segmentChars int
}

func NewExtractor(completer ai.ICompleter, concurrency, segmentChars int) *Extractor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if segmentChars <= 0 {
		segmentChars = DefaultSegmentChars
	}
	return &Extractor{completer: completer, concurrency: concurrency, segmentChars: segmentChars}
}

type segmentResult struct {
	raw    string
	value  interface{}
	parsed bool
	tokens int
}

// Extract runs the schema over every segment of text with at most
// concurrency requests in flight. Upstream errors fail the call, unparsable
// replies do not.
func (e *Extractor) Extract(ctx context.Context, s *Object, text string) (*Result, error) {
	segments := Segment(text, e.segmentChars)
	results := make([]segmentResult, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			out, err := e.completer.Complete(gctx, BuildPrompt(s, seg))
			if err != nil {
				return fmt.Errorf("extract segment %d: %w", i, err)
			}
			res := segmentResult{raw: out.Text, tokens: out.TotalTokens}
			if v, ok := ParseOutput(out.Text); ok {
				res.value = schemaValue(s, v)
				res.parsed = !isEmpty(res.value)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res := merge(s, results)
	logutil.GetLogger(ctx).Info("extraction finished",
		zap.String("schema", s.ID),
		zap.Int("segments", res.Segments),
		zap.Bool("parsed", res.Parsed),
		zap.Int("tokens", res.TotalTokens),
	)
	return res, nil
}

func merge(s *Object, results []segmentResult) *Result {
	res := &Result{Segments: len(results)}
	raws := make([]string, 0, len(results))
	var items []interface{}
	var single interface{}
	for _, r := range results {
		res.TotalTokens += r.tokens
		raws = append(raws, r.raw)
		if !r.parsed {
			continue
		}
		res.Parsed = true
		if list, ok := r.value.([]interface{}); ok {
			items = append(items, list...)
			continue
		}
		if s.Many {
			items = append(items, r.value)
			continue
		}
		if single == nil {
			single = r.value
		}
	}
	if !res.Parsed {
		res.Raw = strings.Join(raws, "\n")
		return res
	}
	switch {
	case s.Many:
		res.Data = map[string]interface{}{s.ID: items}
	case single != nil:
		res.Data = map[string]interface{}{s.ID: single}
	default:
		res.Data = map[string]interface{}{s.ID: items}
	}
	return res
}

// Segment splits text on line boundaries into pieces of at most limit
// characters. A single longer line becomes its own segment. Empty text
// still yields one segment.
func Segment(text string, limit int) []string {
	lines := strings.Split(text, "\n")
	var (
		out  []string
		cur  strings.Builder
		size int
	)
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		if size > 0 && size+1+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			size = 0
		}
		if size > 0 {
			cur.WriteByte('\n')
			size++
		}
		cur.WriteString(line)
		size += n
	}
	if cur.Len() > 0 || len(out) == 0 {
		out = append(out, cur.String())
	}
	return out
}
