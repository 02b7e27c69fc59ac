package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/extract"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/router"
)

type ExtractService struct {
	backend      ai.ICompleter
	selfHosted   ai.ICompleter
	router       *router.Router
	concurrency  int
	segmentChars int
}

// NewExtractService uses backend for hosted selectors and selfHosted for
// "memect". A router backend name also works: the router loads it and the
// raw completer is used, so few-shot examples never reach extraction prompts.
func NewExtractService(backend, selfHosted ai.ICompleter, r *router.Router, concurrency, segmentChars int) *ExtractService {
	return &ExtractService{
		backend:      backend,
		selfHosted:   selfHosted,
		router:       r,
		concurrency:  concurrency,
		segmentChars: segmentChars,
	}
}

func (s *ExtractService) Schemas() []string {
	return extract.Names()
}

func (s *ExtractService) completer(ctx context.Context, backend string) (ai.ICompleter, error) {
	switch {
	case backend == "memect":
		if s.selfHosted == nil {
			return nil, fmt.Errorf("self-hosted backend: %w", appErr.ErrBackendUnavailable)
		}
		return s.selfHosted, nil
	case backend != "" && s.router != nil && s.router.Handles(backend):
		h, err := s.router.Load(ctx, backend)
		if err != nil {
			return nil, err
		}
		return h.Completer(), nil
	case s.backend != nil:
		return s.backend, nil
	}
	return nil, fmt.Errorf("extraction backend: %w", appErr.ErrBackendUnavailable)
}

// Extract runs schemaName over text. Replies that do not parse come back as
// raw text in the result rather than as an error.
func (s *ExtractService) Extract(ctx context.Context, schemaName, backend, text string) (*extract.Result, error) {
	schema, err := extract.Lookup(schemaName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, appErr.ErrInvalid)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required: %w", appErr.ErrInvalid)
	}
	c, err := s.completer(ctx, backend)
	if err != nil {
		return nil, err
	}
	res, err := extract.NewExtractor(c, s.concurrency, s.segmentChars).Extract(ctx, schema, text)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", err, appErr.ErrBackendUnavailable)
		}
		return nil, fmt.Errorf("%w: %w", err, appErr.ErrUpstream)
	}
	return res, nil
}
