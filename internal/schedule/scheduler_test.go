package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string {
	return "counting"
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(&countingJob{}, "not a spec"))
	require.Error(t, s.AddJob(&countingJob{}, "0 0 3 * * *"))
}

func TestTrigger(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{err: errors.New("ignored")}
	require.NoError(t, s.AddJob(job, "0 3 * * *"))
	s.Start(context.Background())
	defer s.Stop()

	require.NoError(t, s.Trigger("counting"))
	require.NoError(t, s.Trigger("counting"))
	require.Equal(t, int32(2), job.runs.Load())
	require.Error(t, s.Trigger("missing"))
}
