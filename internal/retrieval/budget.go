package retrieval

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const DefaultEmbedBudget = 4096

// PartitionByBudget groups consecutive chunks into batches whose summed
// character length stays within budget. A chunk longer than budget forms a
// batch of its own and is never split. Concatenating the batches yields the
// input unchanged.
func PartitionByBudget(texts []string, budget int) [][]string {
	if len(texts) == 0 {
		return nil
	}
	var batches [][]string
	start, sum := 0, 0
	for i, text := range texts {
		l := textLen(text)
		if i > start && sum+l > budget {
			batches = append(batches, texts[start:i])
			start, sum = i, 0
		}
		sum += l
	}
	return append(batches, texts[start:])
}

// ErrMixedModels is returned when batches of one document come back from
// different embedding models.
var ErrMixedModels = fmt.Errorf("embedding model changed between batches: %w", appErr.ErrUpstream)

// EmbedChunks embeds texts one budgeted batch per call and sums the usage.
// The result's Model is the model that answered every batch.
func EmbedChunks(ctx context.Context, embedder ai.IEmbedder, texts []string, budget int) (*ai.EmbedResult, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if budget <= 0 {
		budget = DefaultEmbedBudget
	}
	batches := PartitionByBudget(texts, budget)
	out := &ai.EmbedResult{Records: make([]ai.Embedding, 0, len(texts))}
	for i, batch := range batches {
		res, err := embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", i, err)
		}
		if len(res.Records) != len(batch) {
			return nil, fmt.Errorf("embed batch %d: want %d records, got %d", i, len(batch), len(res.Records))
		}
		model := res.Model
		if model == "" {
			model = embedder.ModelName()
		}
		if i > 0 && model != out.Model {
			return nil, fmt.Errorf("embed batch %d: %q after %q: %w", i, model, out.Model, ErrMixedModels)
		}
		out.Model = model
		out.Records = append(out.Records, res.Records...)
		out.TotalTokens += res.TotalTokens
	}
	logutil.GetLogger(ctx).Debug("chunks embedded",
		zap.Int("chunks", len(texts)),
		zap.Int("batches", len(batches)),
		zap.Int("tokens", out.TotalTokens),
	)
	return out, nil
}
