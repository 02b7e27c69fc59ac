package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/ai"
)

type countingEmbedder struct {
	batches [][]string
}

func (c *countingEmbedder) ModelName() string {
	return "test-model"
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) (*ai.EmbedResult, error) {
	c.batches = append(c.batches, append([]string(nil), texts...))
	records := make([]ai.Embedding, 0, len(texts))
	for _, text := range texts {
		records = append(records, ai.Embedding{Text: text, Vector: []float32{float32(len(text))}})
	}
	return &ai.EmbedResult{Records: records, TotalTokens: len(texts)}, nil
}

func TestLruEmbedderOnlyForwardsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	res, err := e.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalTokens)

	res, err = e.Embed(context.Background(), []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalTokens)
	require.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, inner.batches)

	texts := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		texts = append(texts, rec.Text)
	}
	require.Equal(t, []string{"bb", "ccc", "a"}, texts)
	require.Equal(t, []float32{3}, res.Records[1].Vector)
}

func TestLruEmbedderReturnsCopies(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	_, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	res, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	res.Records[0].Vector[0] = 42

	res, err = e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Equal(t, []float32{1}, res.Records[0].Vector)
}

func TestWrapDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute).(*countingEmbedder))
}

func TestLruEmbedderReportsModel(t *testing.T) {
	e := WrapLruCacheToEmbedder(&countingEmbedder{}, 16, time.Minute)
	res, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Equal(t, "test-model", res.Model)

	res, err = e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Equal(t, "test-model", res.Model)
}
