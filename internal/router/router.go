package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/config"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// CompleterFactory builds the completer for a configured backend selector.
type CompleterFactory func(ctx context.Context, backend string) (ai.ICompleter, error)

// ModelHandle is the live completer plus the few-shot examples bound to it.
// Switching backends drops the handle and its examples.
type ModelHandle struct {
	backend   string
	completer ai.ICompleter
	examples  *exampleStore
}

func (h *ModelHandle) Backend() string {
	return h.backend
}

func (h *ModelHandle) Name() string {
	return h.completer.Name()
}

// Completer returns the backend without example priming.
func (h *ModelHandle) Completer() ai.ICompleter {
	return h.completer
}

// Complete sends prompt through the backend with the example priming
// prepended.
func (h *ModelHandle) Complete(ctx context.Context, prompt string) (*ai.Completion, error) {
	return h.completer.Complete(ctx, h.examples.primeText()+prompt)
}

func (h *ModelHandle) AddExample(input, output string) Example {
	return h.examples.add(input, output)
}

// DeleteExample removes id. Unknown ids are ignored.
func (h *ModelHandle) DeleteExample(id string) bool {
	return h.examples.delete(id)
}

func (h *ModelHandle) GetExample(id string) (Example, bool) {
	return h.examples.get(id)
}

func (h *ModelHandle) GetAllExamples() map[string]Example {
	items := h.examples.list()
	out := make(map[string]Example, len(items))
	for _, ex := range items {
		out[ex.ID] = ex
	}
	return out
}

// ListExamples returns the examples in insertion order.
func (h *ModelHandle) ListExamples() []Example {
	return h.examples.list()
}

func (h *ModelHandle) DeleteAllExamples() int {
	return h.examples.clear()
}

func (h *ModelHandle) PrimeText() string {
	return h.examples.primeText()
}

// Router caches one live handle. Loading the same backend again returns the
// cached handle, loading another one replaces it.
type Router struct {
	mu      sync.Mutex
	factory CompleterFactory
	known   func(backend string) bool
	current *ModelHandle
}

func New(factory CompleterFactory, known func(backend string) bool) *Router {
	return &Router{factory: factory, known: known}
}

// NewFromConfig serves the backends listed under models in the config.
func NewFromConfig(models map[string]config.BackendConfig) *Router {
	factory := func(ctx context.Context, backend string) (ai.ICompleter, error) {
		cfg := models[backend]
		return ai.NewCompleter(cfg.Type, cfg)
	}
	known := func(backend string) bool {
		_, ok := models[backend]
		return ok
	}
	return New(factory, known)
}

// Handles reports whether backend is served by the router.
func (r *Router) Handles(backend string) bool {
	return r.known(backend)
}

func (r *Router) Load(ctx context.Context, backend string) (*ModelHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.backend == backend {
		return r.current, nil
	}
	if !r.known(backend) {
		logutil.GetLogger(ctx).Warn("unknown model backend", zap.String("backend", backend))
		return nil, fmt.Errorf("backend %q: %w", backend, appErr.ErrBackendUnavailable)
	}
	completer, err := r.factory(ctx, backend)
	if err != nil {
		logutil.GetLogger(ctx).Warn("model backend unavailable",
			zap.String("backend", backend), zap.Error(err))
		return nil, fmt.Errorf("backend %q: %w: %w", backend, err, appErr.ErrBackendUnavailable)
	}
	r.current = &ModelHandle{backend: backend, completer: completer, examples: newExampleStore()}
	logutil.GetLogger(ctx).Info("model backend loaded", zap.String("backend", backend))
	return r.current, nil
}

// Current returns the live handle, nil before the first successful load.
func (r *Router) Current() *ModelHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
