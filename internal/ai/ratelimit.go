package ai

import (
	"context"

	"golang.org/x/time/rate"
)

type limitedCompleter struct {
	next    ICompleter
	limiter *rate.Limiter
}

// WithCompleterRateLimit throttles outbound completions to rps requests per second.
func WithCompleterRateLimit(c ICompleter, rps float64) ICompleter {
	if c == nil || rps <= 0 {
		return c
	}
	return &limitedCompleter{next: c, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *limitedCompleter) Name() string {
	return l.next.Name()
}

func (l *limitedCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Complete(ctx, prompt)
}

type limitedEmbedder struct {
	next    IEmbedder
	limiter *rate.Limiter
}

func WithEmbedderRateLimit(e IEmbedder, rps float64) IEmbedder {
	if e == nil || rps <= 0 {
		return e
	}
	return &limitedEmbedder{next: e, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *limitedEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *limitedEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Embed(ctx, texts)
}
