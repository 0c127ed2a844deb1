package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hadmean/hadmean/internal/actions"
	jobmetrics "github.com/hadmean/hadmean/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ActionRunner executes a queued instance run.
type ActionRunner interface {
	Run(ctx context.Context, payload actions.RunPayload) (any, error)
}

// ActionRunJob handles TaskActionPerform tasks.
type ActionRunJob struct {
	Runner  ActionRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewActionRunJob initialises the perform handler.
func NewActionRunJob(runner ActionRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ActionRunJob {
	return &ActionRunJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle decodes the payload and runs the instance. Permanent failures are
// reported with asynq.SkipRetry so the task goes straight to the archive.
func (j *ActionRunJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Runner == nil {
		return errors.New("action run: handler not configured")
	}
	var payload actions.RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("action run: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskActionPerform)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("instance_id", payload.InstanceID))
	if _, err := j.Runner.Run(ctx, payload); err != nil {
		if errors.Is(err, actions.ErrPermanent) {
			logger.Warn("action run rejected", slog.Any("error", err))
			return fmt.Errorf("action run: %v: %w", err, asynq.SkipRetry)
		}
		logger.Error("action run failed", slog.Any("error", err))
		return err
	}
	logger.Info("action run completed")
	return nil
}

func (j *ActionRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ActionRunJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
