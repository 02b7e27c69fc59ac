package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const (
	DefaultTopK          = 15
	DefaultWindow        = 6
	DefaultContextBudget = 3000
)

type AssemblerConfig struct {
	TopK   int
	Window int
	Budget int
}

type Assembler struct {
	embedder ai.IEmbedder
	cfg      AssemblerConfig
}

// AssembledContext is the retrieved context for one query. Tokens is the
// usage of the query embedding.
type AssembledContext struct {
	Text   string
	Chunks []string
	Tokens int
}

func NewAssembler(embedder ai.IEmbedder, cfg AssemblerConfig) *Assembler {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultContextBudget
	}
	return &Assembler{embedder: embedder, cfg: cfg}
}

func (a *Assembler) Assemble(ctx context.Context, query string, doc *DocumentIndex) (*AssembledContext, error) {
	if doc == nil || doc.Index.Len() == 0 {
		return nil, appErr.ErrNotReady
	}
	res, err := a.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(res.Records) != 1 {
		return nil, fmt.Errorf("embed query: want 1 record, got %d", len(res.Records))
	}
	if err := checkQuery(doc, res); err != nil {
		return nil, err
	}
	hits, err := doc.Index.Search(res.Records[0].Vector, a.cfg.TopK)
	if err != nil {
		return nil, err
	}
	chunks := ExpandWindows(doc.Chunks, hits, a.cfg.Window)
	kept := TruncateToBudget(chunks, a.cfg.Budget)
	if len(kept) < len(chunks) {
		logutil.GetLogger(ctx).Warn("context exceeds budget, truncated",
			zap.Int("kept", len(kept)),
			zap.Int("total", len(chunks)),
			zap.Int("budget", a.cfg.Budget),
		)
	}
	logutil.GetLogger(ctx).Info("context assembled",
		zap.String("hash", doc.Hash),
		zap.Int("hits", len(hits)),
		zap.Int("query_tokens", res.TotalTokens),
	)
	return &AssembledContext{
		Text:   strings.Join(kept, ""),
		Chunks: kept,
		Tokens: res.TotalTokens,
	}, nil
}

// checkQuery refuses a query vector the index cannot be searched with. The
// model is compared only when both sides know it.
func checkQuery(doc *DocumentIndex, res *ai.EmbedResult) error {
	if doc.Model != "" && res.Model != "" && doc.Model != res.Model {
		return fmt.Errorf("index model %q, query model %q: %w", doc.Model, res.Model, ErrQueryMismatch)
	}
	if dim := len(res.Records[0].Vector); dim != doc.Index.Dim() {
		return fmt.Errorf("index has %d dims, query has %d: %w", doc.Index.Dim(), dim, ErrQueryMismatch)
	}
	return nil
}

// ExpandWindows appends chunks [p, p+window) for every hit, nearest first,
// clipped at the end of the document. Overlapping windows are not merged, so
// a chunk may appear more than once.
func ExpandWindows(chunks []string, hits []Hit, window int) []string {
	out := make([]string, 0, len(hits)*window)
	for _, hit := range hits {
		if hit.Position < 0 || hit.Position >= len(chunks) {
			continue
		}
		end := hit.Position + window
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[hit.Position:end]...)
	}
	return out
}

// TruncateToBudget subtracts each chunk length from budget and cuts the list
// right after the chunk that drove the remainder negative. The kept chunks
// may exceed budget by that last chunk.
func TruncateToBudget(chunks []string, budget int) []string {
	remaining := budget
	for i, chunk := range chunks {
		remaining -= textLen(chunk)
		if remaining < 0 {
			return chunks[:i+1]
		}
	}
	return chunks
}
