package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/config"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/recurrence"
	"fintrack/internal/repository"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SubscriptionService detects recurring charges and tracks the ones a user keeps.
type SubscriptionService struct {
	db         *gorm.DB
	cfg        *config.Config
	log        zerolog.Logger
	txnRepo    *repository.TransactionRepository
	subRepo    *repository.SubscriptionRepository
	outboxRepo *repository.OutboxRepository
	now        func() time.Time
}

// NewSubscriptionService creates a subscription service.
func NewSubscriptionService(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		db:         db,
		cfg:        cfg,
		log:        logger.Component(log, "subscription_service"),
		txnRepo:    repository.NewTransactionRepository(db),
		subRepo:    repository.NewSubscriptionRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		now:        time.Now,
	}
}

// Detect scans the user's last lookbackDays of transactions. It never writes.
func (s *SubscriptionService) Detect(ctx context.Context, userID int64, lookbackDays int) ([]model.SubscriptionCandidate, error) {
	if lookbackDays < 0 {
		return nil, apperr.Validation("lookback_days", "must not be negative")
	}
	if lookbackDays == 0 {
		lookbackDays = s.cfg.Business.LookbackDays
	}

	now := s.now().UTC()
	txs, err := s.txnRepo.List(ctx, userID, repository.TransactionFilter{
		From: model.DateOnly(now).AddDate(0, 0, -lookbackDays),
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	cands := recurrence.Detect(txs, recurrence.Options{LookbackDays: lookbackDays, Now: now})
	s.log.Debug().Int64("user_id", userID).Int("scanned", len(txs)).Int("candidates", len(cands)).Msg("recurrence detection")
	return cands, nil
}

// Create persists a detected candidate, copying its fields. A merchant key can
// be tracked once per user.
func (s *SubscriptionService) Create(ctx context.Context, userID int64, cand *model.SubscriptionCandidate) (*model.Subscription, error) {
	if err := validateCandidate(cand); err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		UserID:          userID,
		MerchantKey:     cand.MerchantKey,
		Name:            cand.MerchantName,
		AccountID:       cand.AccountID,
		CategoryID:      cand.CategoryID,
		Amount:          cand.Amount,
		Frequency:       cand.Frequency,
		IntervalDays:    cand.IntervalDays,
		Confidence:      cand.Confidence,
		LastPaymentDate: model.DateOnly(cand.LastOccurrence),
		NextPaymentDate: model.DateOnly(cand.PredictedNextDate),
		Status:          model.SubscriptionStatusActive,
	}
	if sub.Name == "" {
		sub.Name = strings.SplitN(cand.MerchantKey, "|", 2)[0]
	}
	if sub.NextPaymentDate.IsZero() {
		sub.NextPaymentDate = sub.LastPaymentDate.AddDate(0, 0, sub.IntervalDays)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.subRepo.GetByMerchantKey(ctx, tx, userID, cand.MerchantKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("subscription", existing.ID, "tracked")
		}
		if err := s.subRepo.Create(ctx, tx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		return writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.SubscriptionCreated, model.EventSubscriptionCreated, cand.MerchantKey, sub)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("user_id", userID).Int64("subscription_id", sub.ID).Str("merchant_key", sub.MerchantKey).Msg("subscription created")
	return sub, nil
}

func validateCandidate(c *model.SubscriptionCandidate) error {
	switch {
	case c == nil:
		return apperr.Validation("candidate", "is required")
	case strings.TrimSpace(c.MerchantKey) == "":
		return apperr.Validation("merchant_key", "must not be empty")
	case c.IntervalDays <= 0:
		return apperr.Validation("interval_days", "must be positive")
	case c.Confidence < 0 || c.Confidence > 1:
		return apperr.Validation("confidence", "must be within [0,1], got %v", c.Confidence)
	case c.LastOccurrence.IsZero():
		return apperr.Validation("last_occurrence", "is required")
	}
	if c.Frequency == "" {
		c.Frequency = frequencyFor(c.IntervalDays)
	}
	return nil
}

func frequencyFor(days int) string {
	for _, p := range recurrence.Periods {
		if days >= p.Days-p.Tolerance && days <= p.Days+p.Tolerance {
			return p.Name
		}
	}
	return "custom"
}

func (s *SubscriptionService) List(ctx context.Context, userID int64) ([]model.Subscription, error) {
	return s.subRepo.ListByUser(ctx, userID)
}

func (s *SubscriptionService) Get(ctx context.Context, userID, id int64) (*model.Subscription, error) {
	return s.subRepo.GetByID(ctx, userID, id)
}

// Upcoming lists detected renewals predicted within the next days.
func (s *SubscriptionService) Upcoming(ctx context.Context, userID int64, days int) ([]recurrence.Renewal, error) {
	if days < 0 {
		return nil, apperr.Validation("days", "must not be negative")
	}
	if days == 0 {
		days = s.cfg.Business.UpcomingDays
	}
	cands, err := s.Detect(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return recurrence.Upcoming(cands, s.now(), days), nil
}

// Missed lists detected charges overdue by more than graceDays with nothing
// matching since. A negative graceDays selects the configured default.
func (s *SubscriptionService) Missed(ctx context.Context, userID int64, graceDays int) ([]recurrence.Renewal, error) {
	if graceDays < 0 {
		graceDays = s.cfg.Business.GraceDays
	}
	cands, err := s.Detect(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return recurrence.Missed(cands, s.now(), graceDays), nil
}
