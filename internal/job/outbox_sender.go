package job

import (
	"context"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/mq"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/repository"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// OutboxSender publishes pending outbox rows to Kafka. A row that keeps failing
// is marked FAILED after max_retry_count attempts.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	cfg        *config.Config
	log        zerolog.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

// NewOutboxSender polls every 100ms, 100 rows at a time.
func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config, log zerolog.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		log:        logger.Component(log, "outbox_sender"),
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("outbox sender stopped by context")
			return
		case <-s.stopCh:
			s.log.Info().Msg("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("load pending messages")
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	log := s.log.With().Int64("id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Logger()

	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if err := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); err != nil {
			log.Error().Err(err).Msg("mark message sent")
			return
		}
		log.Debug().Str("event", msg.EventType).Msg("message sent")
		return
	}

	log.Warn().Err(err).Int("retry_count", msg.RetryCount).Msg("publish failed")

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Error().Err(err).Msg("mark message failed")
			return
		}
		log.Error().Msg("message exceeded max retries, marked failed")
		return
	}

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Error().Err(err).Msg("increment retry count")
	}
}
