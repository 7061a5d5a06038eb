package nav

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule runs job on a cron spec until ctx is done. A failed snapshot is
// logged and the schedule carries on.
func Schedule(ctx context.Context, spec string, job *Job, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := job.Run(ctx); err != nil {
			logger.Error("nav snapshot failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("watch started", zap.String("schedule", spec))
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("watch stopped")
	return nil
}
