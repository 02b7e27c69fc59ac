package ai

import (
	"context"
	"errors"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

var sleepFn = sleepContext

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 8 {
		return retryMaxDelay
	}
	d := retryBaseDelay << attempt
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func withRetry[T any](ctx context.Context, name string, maxRetries int, fn func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, err = fn()
		if !retryable(err) {
			return res, err
		}
		if attempt == maxRetries {
			break
		}
		logutil.GetLogger(ctx).Warn("backend call failed, retrying",
			zap.String("backend", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if serr := sleepFn(ctx, retryDelay(attempt)); serr != nil {
			return res, err
		}
	}
	return res, err
}

type retryCompleter struct {
	next       ICompleter
	maxRetries int
}

// WithCompleterRetry retries failed completions with exponential backoff.
func WithCompleterRetry(c ICompleter, maxRetries int) ICompleter {
	if c == nil || maxRetries <= 0 {
		return c
	}
	return &retryCompleter{next: c, maxRetries: maxRetries}
}

func (r *retryCompleter) Name() string {
	return r.next.Name()
}

func (r *retryCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	return withRetry(ctx, r.next.Name(), r.maxRetries, func() (*Completion, error) {
		return r.next.Complete(ctx, prompt)
	})
}

type retryEmbedder struct {
	next       IEmbedder
	maxRetries int
}

func WithEmbedderRetry(e IEmbedder, maxRetries int) IEmbedder {
	if e == nil || maxRetries <= 0 {
		return e
	}
	return &retryEmbedder{next: e, maxRetries: maxRetries}
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}

func (r *retryEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	return withRetry(ctx, r.next.ModelName(), r.maxRetries, func() (*EmbedResult, error) {
		return r.next.Embed(ctx, texts)
	})
}
