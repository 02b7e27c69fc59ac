package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	batches []int
	cutoffs []int64
	err     error
}

func (f *fakePurger) PurgeIdle(ctx context.Context, before int64, limit uint) (int, error) {
	f.cutoffs = append(f.cutoffs, before)
	if len(f.batches) == 0 {
		return 0, f.err
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func TestRetentionDrainsInBatches(t *testing.T) {
	p := &fakePurger{batches: []int{retentionBatch, retentionBatch, 3}}
	j := NewIndexRetentionJob(p, 7)
	now := time.Unix(1_000_000, 0)
	j.now = func() time.Time { return now }

	require.NoError(t, j.Run(context.Background()))
	require.Len(t, p.cutoffs, 3)
	require.Equal(t, now.Add(-7*24*time.Hour).Unix(), p.cutoffs[0])
}

func TestRetentionPropagatesError(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	require.Error(t, NewIndexRetentionJob(p, 0).Run(context.Background()))
}

func TestRetentionWithoutCatalog(t *testing.T) {
	require.NoError(t, NewIndexRetentionJob(nil, 30).Run(context.Background()))
}
