package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
)

// WrapLruCacheToEmbedder caches vectors per (model, text). Only texts missing
// from the cache are sent to the wrapped embedder, in one call. Token usage
// reflects that call alone. Wrap a single backend, not a group: the key uses
// the wrapped embedder's model name.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string) (*ai.EmbedResult, error) {
	modelName := l.next.ModelName()
	records := make([]ai.Embedding, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if cached, ok := l.cache.Get(buildCacheKey(modelName, text)); ok {
			records[i] = ai.Embedding{Text: text, Vector: cloneEmbedding(cached)}
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	hits := len(texts) - len(missTexts)
	if hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.Int("hits", hits), zap.Int("total", len(texts)))
	}
	res := &ai.EmbedResult{Records: records, Model: modelName}
	if len(missTexts) == 0 {
		return res, nil
	}
	fresh, err := l.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh.Records) != len(missTexts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(missTexts), len(fresh.Records))
	}
	for j, rec := range fresh.Records {
		records[missIdx[j]] = rec
		l.cache.Add(buildCacheKey(modelName, rec.Text), cloneEmbedding(rec.Vector))
	}
	res.TotalTokens = fresh.TotalTokens
	if fresh.Model != "" {
		res.Model = fresh.Model
	}
	return res, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func buildCacheKey(modelName, text string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	return "embed:" + modelName + ":" + hex.EncodeToString(hash[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
