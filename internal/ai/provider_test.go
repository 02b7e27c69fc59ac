package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	name  string
	err   error
	calls int
}

func (s *stubEmbedder) ModelName() string {
	return s.name
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	records := make([]Embedding, 0, len(texts))
	for _, text := range texts {
		records = append(records, Embedding{Text: text, Vector: []float32{1}})
	}
	return &EmbedResult{Records: records, TotalTokens: len(texts)}, nil
}

type stubCompleter struct {
	errs  []error
	calls int
}

func (s *stubCompleter) Name() string {
	return "stub"
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return &Completion{Text: "ok"}, nil
}

func noSleep(t *testing.T) {
	t.Helper()
	prev := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error { return nil }
	t.Cleanup(func() { sleepFn = prev })
}

func TestNewCompleterUnknownBackend(t *testing.T) {
	_, err := NewCompleter("nope", map[string]interface{}{})
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = NewEmbedder("nope", map[string]interface{}{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCompleterNamesIncludesBuiltins(t *testing.T) {
	names := CompleterNames()
	for _, want := range []string{"azure", "gemini", "memect", "ollama", "open_ai", "openrouter"} {
		require.Contains(t, names, want)
	}
}

func TestOpenAIFactoryWithoutKeyIsUnavailable(t *testing.T) {
	_, err := NewCompleter("azure", map[string]interface{}{"base_url": "https://example.openai.azure.com"})
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = NewEmbedder("open_ai", map[string]interface{}{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRetryCompleter(t *testing.T) {
	noSleep(t)
	stub := &stubCompleter{errs: []error{errors.New("a"), errors.New("b")}}
	c := WithCompleterRetry(stub, 3)
	out, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "ok", out.Text)
	require.Equal(t, 3, stub.calls)
}

func TestRetryCompleterGivesUp(t *testing.T) {
	noSleep(t)
	stub := &stubCompleter{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	c := WithCompleterRetry(stub, 1)
	_, err := c.Complete(context.Background(), "p")
	require.EqualError(t, err, "b")
	require.Equal(t, 2, stub.calls)
}

func TestRetrySkipsUnavailable(t *testing.T) {
	noSleep(t)
	stub := &stubCompleter{errs: []error{ErrUnavailable}}
	c := WithCompleterRetry(stub, 3)
	_, err := c.Complete(context.Background(), "p")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, 1, stub.calls)
}

func TestRetryDelay(t *testing.T) {
	require.Equal(t, 200*time.Millisecond, retryDelay(0))
	require.Equal(t, 400*time.Millisecond, retryDelay(1))
	require.Equal(t, 5*time.Second, retryDelay(10))
}

func TestGroupEmbedderPrefersPrimaryAfterOutage(t *testing.T) {
	first := &stubEmbedder{name: "a", err: errors.New("down")}
	second := &stubEmbedder{name: "b"}
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: first}, {Name: "b", Embedder: second}})

	res, err := g.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, "b", res.Model)

	first.err = nil
	res, err = g.Embed(context.Background(), []string{"y"})
	require.NoError(t, err)
	require.Equal(t, "a", res.Model)
	require.Equal(t, 2, first.calls)
	require.Equal(t, 1, second.calls)
	require.Equal(t, "a|b", g.ModelName())
}

func TestGroupEmbedderAllFail(t *testing.T) {
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "a", Embedder: &stubEmbedder{err: errors.New("x")}},
		{Name: "b", Embedder: &stubEmbedder{err: errors.New("y")}},
	})
	_, err := g.Embed(context.Background(), []string{"x"})
	require.EqualError(t, err, "y")
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 2, estimateTokens("hello world"))
	require.Equal(t, 4, estimateTokens("你好 a"))
	require.Equal(t, 0, estimateTokens(""))
}

func TestUsageFromInfo(t *testing.T) {
	require.Equal(t, 7, usageFromInfo(map[string]any{"TotalTokens": 7}))
	require.Equal(t, 9, usageFromInfo(map[string]any{"TotalTokens": float64(9)}))
	require.Equal(t, 0, usageFromInfo(nil))
}

func TestRecordsFromVectorsMismatch(t *testing.T) {
	_, err := recordsFromVectors([]string{"a", "b"}, [][]float32{{1}})
	require.Error(t, err)
}

func TestOpenRouterCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": " routed "}}], "usage": {"total_tokens": 5}}`))
	}))
	defer srv.Close()

	c, err := NewCompleter("openrouter", map[string]interface{}{"api_key": "k", "base_url": srv.URL, "model": "m"})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "routed", out.Text)
	require.Equal(t, 5, out.TotalTokens)
}

func TestRateLimitWrappers(t *testing.T) {
	c := &stubCompleter{}
	require.Same(t, c, WithCompleterRateLimit(c, 0).(*stubCompleter))

	limited := WithCompleterRateLimit(c, 1000)
	require.Equal(t, "stub", limited.Name())
	out, err := limited.Complete(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "ok", out.Text)

	e := &stubEmbedder{name: "m"}
	slow := WithEmbedderRateLimit(e, 0.001)
	_, err = slow.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.Embed(ctx, []string{"b"})
	require.Error(t, err)
	require.Equal(t, 1, e.calls)
}
