package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/convert"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/indexstore"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/retrieval"
	"github.com/xxxsen/docchat/internal/session"
)

const (
	sourceName = "source"
	textName   = "table.txt"
)

// DocumentCatalog records indexed uploads. The service works without one.
type DocumentCatalog interface {
	Upsert(ctx context.Context, doc *model.IndexedDocument) error
	Touch(ctx context.Context, hash string, atime int64) error
	ListIdleBefore(ctx context.Context, cutoff int64, limit uint) ([]model.IndexedDocument, error)
	Delete(ctx context.Context, hash string) error
}

type UploadLimits struct {
	MaxSize    int64
	Extensions []string
}

type UploadResult struct {
	Hash   string `json:"hash"`
	Chunks int    `json:"chunks"`
	Tokens int    `json:"tokens"`
	Reused bool   `json:"reused"`
}

type DocumentService struct {
	limits      UploadLimits
	files       filestore.Store
	indexes     *indexstore.Store
	converter   convert.Converter
	embedder    ai.IEmbedder
	embedBudget int
	sessions    *session.Store
	catalog     DocumentCatalog
}

func NewDocumentService(limits UploadLimits, files filestore.Store, indexes *indexstore.Store, converter convert.Converter, embedder ai.IEmbedder, embedBudget int, sessions *session.Store, catalog DocumentCatalog) *DocumentService {
	return &DocumentService{
		limits:      limits,
		files:       files,
		indexes:     indexes,
		converter:   converter,
		embedder:    embedder,
		embedBudget: embedBudget,
		sessions:    sessions,
		catalog:     catalog,
	}
}

// ValidateUpload checks extension and size before any byte is stored.
func (s *DocumentService) ValidateUpload(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	allowed := false
	for _, item := range s.limits.Extensions {
		if item == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("extension %q not allowed: %w", ext, appErr.ErrUnsupportedType)
	}
	if size > s.limits.MaxSize {
		return fmt.Errorf("%d bytes exceeds %d: %w", size, s.limits.MaxSize, appErr.ErrTooLarge)
	}
	return nil
}

func ContentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Upload indexes a file and binds it to the session. Content already indexed
// under the same hash is reused without converting or embedding again.
func (s *DocumentService) Upload(ctx context.Context, sessionID, filename string, data []byte) (*UploadResult, error) {
	if err := s.ValidateUpload(filename, int64(len(data))); err != nil {
		return nil, err
	}
	hash := ContentHash(data)
	logger := logutil.GetLogger(ctx).With(zap.String("hash", hash), zap.String("file", filename))
	now := time.Now().Unix()

	doc, err := s.indexes.Load(ctx, hash)
	switch {
	case err == nil:
		s.bind(ctx, sessionID, hash)
		if s.catalog != nil {
			if err := s.catalog.Touch(ctx, hash, now); err != nil && !errors.Is(err, appErr.ErrNotFound) {
				logger.Warn("touch catalog failed", zap.Error(err))
			}
		}
		logger.Info("reuse indexed document", zap.Int("chunks", len(doc.Chunks)))
		return &UploadResult{Hash: hash, Chunks: len(doc.Chunks), Reused: true}, nil
	case errors.Is(err, appErr.ErrCorrupt):
		logger.Warn("stored index corrupt, rebuilding", zap.Error(err))
	case !errors.Is(err, appErr.ErrNotFound):
		return nil, err
	}

	text, err := s.converter.ToText(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", filename, err)
	}
	doc, tokens, err := s.IndexText(ctx, hash, text)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, doc, filepath.Ext(filename), data, text); err != nil {
		return nil, err
	}
	s.bind(ctx, sessionID, hash)
	if s.catalog != nil {
		err := s.catalog.Upsert(ctx, &model.IndexedDocument{
			ContentHash: hash,
			Filename:    filename,
			Size:        int64(len(data)),
			ChunkCount:  len(doc.Chunks),
			TokenUsage:  tokens,
			Ctime:       now,
			Atime:       now,
		})
		if err != nil {
			logger.Warn("record catalog failed", zap.Error(err))
		}
	}
	logger.Info("document indexed", zap.Int("chunks", len(doc.Chunks)), zap.Int("tokens", tokens))
	return &UploadResult{Hash: hash, Chunks: len(doc.Chunks), Tokens: tokens}, nil
}

// persist writes the original, its text and the index blob. Nothing is written
// before the document is indexed; a failed write removes what was saved.
func (s *DocumentService) persist(ctx context.Context, doc *retrieval.DocumentIndex, ext string, data []byte, text string) error {
	sourceKey := doc.Hash + "/" + sourceName + strings.ToLower(ext)
	textKey := doc.Hash + "/" + textName
	var saved []string
	rollback := func() {
		for _, key := range saved {
			if err := s.files.Delete(ctx, key); err != nil {
				logutil.GetLogger(ctx).Warn("remove partial upload failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	if err := s.files.Save(ctx, sourceKey, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("store original: %w", err)
	}
	saved = append(saved, sourceKey)
	if err := s.files.Save(ctx, textKey, strings.NewReader(text), int64(len(text))); err != nil {
		rollback()
		return fmt.Errorf("store text: %w", err)
	}
	saved = append(saved, textKey)
	if err := s.indexes.Save(ctx, doc); err != nil {
		rollback()
		return err
	}
	return nil
}

// IndexText chunks and embeds text into an in-memory index.
func (s *DocumentService) IndexText(ctx context.Context, hash, text string) (*retrieval.DocumentIndex, int, error) {
	chunks := retrieval.ReadLines(text)
	if len(chunks) == 0 {
		return nil, 0, fmt.Errorf("document has no text: %w", appErr.ErrInvalid)
	}
	res, err := retrieval.EmbedChunks(ctx, s.embedder, chunks, s.embedBudget)
	if err != nil {
		return nil, 0, fmt.Errorf("embed document: %w: %w", err, appErr.ErrUpstream)
	}
	doc, err := retrieval.NewDocumentIndex(hash, res.Records)
	if err != nil {
		return nil, 0, fmt.Errorf("build index: %w: %w", err, appErr.ErrUpstream)
	}
	doc.Model = res.Model
	return doc, res.TotalTokens, nil
}

func (s *DocumentService) bind(ctx context.Context, sessionID, hash string) {
	if sessionID == "" || s.sessions == nil {
		return
	}
	s.sessions.Bind(sessionID, hash)
	logutil.GetLogger(ctx).Debug("session bound", zap.String("session", sessionID), zap.String("hash", hash))
}

// SessionDocument loads the index the session uploaded last. No upload yields
// ErrNotReady, a missing or corrupt blob ErrNotFound or ErrCorrupt.
func (s *DocumentService) SessionDocument(ctx context.Context, sessionID string) (*retrieval.DocumentIndex, error) {
	if s.sessions == nil {
		return nil, appErr.ErrNotReady
	}
	hash, ok := s.sessions.Document(sessionID)
	if !ok {
		return nil, appErr.ErrNotReady
	}
	return s.indexes.Load(ctx, hash)
}

// Remove deletes every stored artifact of a document and unbinds its sessions.
func (s *DocumentService) Remove(ctx context.Context, hash, filename string) error {
	if err := s.indexes.Delete(ctx, hash); err != nil {
		return err
	}
	keys := []string{hash + "/" + textName}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		keys = append(keys, hash+"/"+sourceName+ext)
	}
	for _, key := range keys {
		if err := s.files.Delete(ctx, key); err != nil && !errors.Is(err, appErr.ErrNotFound) {
			return err
		}
	}
	if s.sessions != nil {
		s.sessions.ForgetDocument(hash)
	}
	if s.catalog != nil {
		return s.catalog.Delete(ctx, hash)
	}
	return nil
}

// PurgeIdle removes up to limit catalogued documents last used before the
// given unix time. It returns how many were removed.
func (s *DocumentService) PurgeIdle(ctx context.Context, before int64, limit uint) (int, error) {
	if s.catalog == nil {
		return 0, nil
	}
	docs, err := s.catalog.ListIdleBefore(ctx, before, limit)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if err := s.Remove(ctx, doc.ContentHash, doc.Filename); err != nil {
			return removed, fmt.Errorf("purge %s: %w", doc.ContentHash, err)
		}
		removed++
	}
	return removed, nil
}
