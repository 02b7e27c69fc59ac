package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs jobs on five-field cron specs. A job still running when
// its next tick fires is skipped for that tick.
type CronScheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	ctx  context.Context
	jobs map[string]func()
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
		ctx:  context.Background(),
		jobs: make(map[string]func()),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", job.Name()), zap.String("spec", spec))
	run := c.wrap(job, spec)
	if _, err := c.cron.AddFunc(spec, run); err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	c.mu.Lock()
	c.jobs[job.Name()] = run
	c.mu.Unlock()
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

// Trigger runs a scheduled job immediately on the caller's goroutine.
func (c *CronScheduler) Trigger(name string) error {
	c.mu.Lock()
	run, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not scheduled", name)
	}
	run()
	return nil
}

func (c *CronScheduler) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		ctx := c.runContext()
		logger := logutil.GetLogger(ctx).With(zap.String("job", job.Name()), zap.String("spec", spec))
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running")
			return
		}
		defer running.Store(false)
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		logger.Info("job finished", zap.Duration("duration", time.Since(start)))
	}
}
