package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// groupEmbedder tries its entries in order on every call. Results carry the
// model of the entry that answered so callers can tell vectors apart.
type groupEmbedder struct {
	items []EmbedderEntry
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Embedder
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, texts)
		if err == nil {
			if res.Model == "" {
				res.Model = entryModel(item)
			}
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name == "" {
			continue
		}
		names = append(names, item.Name)
	}
	return strings.Join(names, "|")
}

func entryModel(item EmbedderEntry) string {
	if name := item.Embedder.ModelName(); name != "" {
		return name
	}
	return item.Name
}
