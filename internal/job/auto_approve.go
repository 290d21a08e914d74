package job

import (
	"context"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/logger"
	"fintrack/internal/repository"
	"fintrack/internal/service"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// AutoApproveJob periodically approves confident pending extractions for
// every user that has some, using the same path as the auto-approve endpoint.
type AutoApproveJob struct {
	extractedRepo *repository.ExtractedRepository
	review        *service.ReviewService
	cfg           *config.Config
	log           zerolog.Logger
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

// NewAutoApproveJob builds the sweep; it stays idle unless auto_approve_interval_seconds is positive.
func NewAutoApproveJob(db *gorm.DB, review *service.ReviewService, cfg *config.Config, log zerolog.Logger) *AutoApproveJob {
	return &AutoApproveJob{
		extractedRepo: repository.NewExtractedRepository(db),
		review:        review,
		cfg:           cfg,
		log:           logger.Component(log, "auto_approve_job"),
		stopCh:        make(chan struct{}),
		interval:      time.Duration(cfg.Business.AutoApproveIntervalSeconds) * time.Second,
		batchSize:     100,
	}
}

// Start blocks until ctx is done or Stop is called. It returns at once when
// the job is disabled.
func (j *AutoApproveJob) Start(ctx context.Context) {
	if j.interval <= 0 {
		j.log.Info().Msg("auto approve job disabled")
		return
	}
	j.log.Info().Dur("interval", j.interval).Msg("auto approve job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("auto approve job stopped by context")
			return
		case <-j.stopCh:
			j.log.Info().Msg("auto approve job stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *AutoApproveJob) Stop() {
	close(j.stopCh)
}

func (j *AutoApproveJob) sweep(ctx context.Context) {
	threshold := j.cfg.Business.AutoApproveThreshold
	users, err := j.extractedRepo.UsersWithPendingAbove(ctx, threshold, j.batchSize)
	if err != nil {
		j.log.Error().Err(err).Msg("load users with pending extractions")
		return
	}

	for _, userID := range users {
		res, err := j.review.AutoApprove(ctx, userID, &threshold)
		if err != nil {
			j.log.Error().Err(err).Int64("user_id", userID).Msg("auto approve failed")
			continue
		}
		if failed := res.Failed(); len(failed) > 0 {
			j.log.Warn().Int64("user_id", userID).Int("failed", len(failed)).Msg("auto approve left items pending")
		}
	}
}
