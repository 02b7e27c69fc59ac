package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const retentionBatch = 100

type IndexPurger interface {
	PurgeIdle(ctx context.Context, before int64, limit uint) (int, error)
}

// IndexRetentionJob drops indexed documents nobody has used for maxAgeDays.
type IndexRetentionJob struct {
	purger     IndexPurger
	maxAgeDays int
	now        func() time.Time
}

func NewIndexRetentionJob(purger IndexPurger, maxAgeDays int) *IndexRetentionJob {
	return &IndexRetentionJob{purger: purger, maxAgeDays: maxAgeDays, now: time.Now}
}

func (j *IndexRetentionJob) Name() string {
	return "index_retention"
}

func (j *IndexRetentionJob) Run(ctx context.Context) error {
	if j.purger == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := j.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	total := 0
	for {
		n, err := j.purger.PurgeIdle(ctx, cutoff, retentionBatch)
		total += n
		if err != nil {
			return err
		}
		if n < retentionBatch {
			break
		}
	}
	logutil.GetLogger(ctx).Info("idle indexes purged", zap.Int("count", total), zap.Int64("cutoff", cutoff))
	return nil
}
