package indexstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/filestore"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/retrieval"
)

const blobName = "embedding.blob"

func BlobKey(hash string) string {
	return hash + "/" + blobName
}

// Store persists document indexes as blobs, one per content hash. Decoded
// indexes are kept in a small LRU since chat turns reload the same document.
type Store struct {
	files filestore.Store
	cache *expirable.LRU[string, *retrieval.DocumentIndex]
}

func New(files filestore.Store, cacheSize int, cacheTTL time.Duration) *Store {
	s := &Store{files: files}
	if cacheSize > 0 && cacheTTL > 0 {
		s.cache = expirable.NewLRU[string, *retrieval.DocumentIndex](cacheSize, nil, cacheTTL)
	}
	return s
}

func (s *Store) Save(ctx context.Context, doc *retrieval.DocumentIndex) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := s.files.Save(ctx, BlobKey(doc.Hash), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("save index %s: %w", doc.Hash, err)
	}
	if s.cache != nil {
		s.cache.Add(doc.Hash, doc)
	}
	logutil.GetLogger(ctx).Info("index saved",
		zap.String("hash", doc.Hash),
		zap.Int("vectors", doc.Index.Len()),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Load returns the stored index. A missing blob yields errors.ErrNotFound and
// an undecodable one errors.ErrCorrupt. Callers treat both as not ready.
func (s *Store) Load(ctx context.Context, hash string) (*retrieval.DocumentIndex, error) {
	if s.cache != nil {
		if doc, ok := s.cache.Get(hash); ok {
			return doc, nil
		}
	}
	rc, err := s.files.Open(ctx, BlobKey(hash))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", hash, err)
	}
	doc, err := Decode(data)
	if err != nil {
		logutil.GetLogger(ctx).Error("index blob corrupt", zap.String("hash", hash), zap.Error(err))
		return nil, err
	}
	if doc.Hash != hash {
		return nil, corrupt("hash mismatch: stored %s, requested %s", doc.Hash, hash)
	}
	if s.cache != nil {
		s.cache.Add(hash, doc)
	}
	return doc, nil
}

func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	if s.cache != nil && s.cache.Contains(hash) {
		return true, nil
	}
	return s.files.Exists(ctx, BlobKey(hash))
}

func (s *Store) Delete(ctx context.Context, hash string) error {
	if s.cache != nil {
		s.cache.Remove(hash)
	}
	if err := s.files.Delete(ctx, BlobKey(hash)); err != nil && !errors.Is(err, appErr.ErrNotFound) {
		return err
	}
	return nil
}
