package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/config"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// Converter turns an uploaded file into plain text, one paragraph per line.
type Converter interface {
	ToText(ctx context.Context, filename string, data []byte) (string, error)
}

type Service struct {
	remote  *Remote
	timeout time.Duration
}

// New builds a converter. Without an api server only .txt and .pdf inputs
// are handled, the latter with the embedded pdf text extractor.
func New(cfg config.ConvertConfig) *Service {
	s := &Service{timeout: time.Duration(cfg.Timeout) * time.Second}
	if strings.TrimSpace(cfg.APIServer) == "" {
		return s
	}
	var opts []RemoteOption
	if cfg.Async {
		opts = append(opts, WithAsync(time.Duration(cfg.PollIntervalMs)*time.Millisecond, cfg.MaxPolls))
	}
	s.remote = NewRemote(cfg.APIServer, opts...)
	return s
}

func NewWithRemote(remote *Remote, timeout time.Duration) *Service {
	return &Service{remote: remote, timeout: timeout}
}

func (s *Service) ToText(ctx context.Context, filename string, data []byte) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not utf-8 text: %w", filename, appErr.ErrInvalid)
		}
		return string(data), nil
	case ".pdf":
		return s.pdfToText(ctx, filename, data)
	case ".doc", ".docx":
		if s.remote == nil {
			return "", fmt.Errorf("no conversion server for %s: %w", ext, appErr.ErrUnsupportedType)
		}
		pdfData, err := s.remote.DocxToPDF(ctx, data)
		if err != nil {
			return "", fmt.Errorf("convert %s to pdf: %w", filename, err)
		}
		return s.remote.PDFToText(ctx, pdfData)
	}
	return "", fmt.Errorf("extension %q: %w", ext, appErr.ErrUnsupportedType)
}

func (s *Service) pdfToText(ctx context.Context, filename string, data []byte) (string, error) {
	if s.remote != nil {
		text, err := s.remote.PDFToText(ctx, data)
		if err == nil {
			return text, nil
		}
		logutil.GetLogger(ctx).Warn("remote pdf conversion failed, use local extractor",
			zap.String("file", filename), zap.Error(err))
	}
	return ExtractPDFText(data)
}

// ExtractPDFText reads the text layer of a pdf with one line per text row.
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w: %w", err, appErr.ErrInvalid)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w: %w", err, appErr.ErrInvalid)
	}
	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
