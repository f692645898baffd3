package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vaultgate/vaultgate/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOTPSweep clears login codes that expired without being used.
	TaskTypeOTPSweep = "otp:sweep"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OTPSweepPayload carries scheduling metadata.
type OTPSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOTPSweepTask constructs an Asynq task for the expired-code sweep.
func NewOTPSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OTPSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOTPSweep, body, asynq.Queue(QueueDefault)), nil
}

// CodeSweeper clears expired one-time codes from storage.
type CodeSweeper interface {
	ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}

// OTPSweepJob removes one-time codes whose validity window has passed.
type OTPSweepJob struct {
	Sweeper CodeSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOTPSweepJob wires dependencies for the sweep handler.
func NewOTPSweepJob(sweeper CodeSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *OTPSweepJob {
	return &OTPSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTypeOTPSweep tasks.
func (j *OTPSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("otp sweep: handler not configured")
	}
	var payload OTPSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeOTPSweep)
	cleared, err := j.Sweeper.ClearExpiredCodes(ctx, j.clock())
	if err != nil {
		j.logger().Error("otp sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	if cleared > 0 {
		j.metrics().AddCleared(TaskTypeOTPSweep, cleared)
		j.logger().Info("otp sweep",
			slog.Int64("cleared", cleared),
			slog.Time("scheduled_for", payload.ScheduledFor))
	}
	return tracker.End(nil)
}

func (j *OTPSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OTPSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
