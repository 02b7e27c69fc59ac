package retrieval

import (
	"fmt"

	"github.com/xxxsen/docchat/internal/ai"
)

// DocumentIndex holds one document's chunks and the index over their vectors.
// Chunks[i] is the text of index position i. Model is the embedding model the
// vectors came from, empty when unknown.
type DocumentIndex struct {
	Hash   string
	Model  string
	Chunks []string
	Index  *FlatIndex
}

func NewDocumentIndex(hash string, records []ai.Embedding) (*DocumentIndex, error) {
	chunks := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	for _, rec := range records {
		chunks = append(chunks, rec.Text)
		vectors = append(vectors, rec.Vector)
	}
	index, err := BuildFlatIndex(vectors)
	if err != nil {
		return nil, fmt.Errorf("build index for %s: %w", hash, err)
	}
	return &DocumentIndex{Hash: hash, Chunks: chunks, Index: index}, nil
}
