package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/config"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/internal/rules"
	"fintrack/pkg/idgen"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RuleService owns each user's ordered rule set.
type RuleService struct {
	db           *gorm.DB
	locker       lock.Locker
	cfg          *config.Config
	log          zerolog.Logger
	ruleRepo     *repository.RuleRepository
	txnRepo      *repository.TransactionRepository
	categoryRepo *repository.CategoryRepository
	outboxRepo   *repository.OutboxRepository
}

// NewRuleService creates a rule service; locker guards reorder and apply-to-existing.
func NewRuleService(db *gorm.DB, locker lock.Locker, cfg *config.Config, log zerolog.Logger) *RuleService {
	return &RuleService{
		db:           db,
		locker:       locker,
		cfg:          cfg,
		log:          logger.Component(log, "rule_service"),
		ruleRepo:     repository.NewRuleRepository(db),
		txnRepo:      repository.NewTransactionRepository(db),
		categoryRepo: repository.NewCategoryRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

// RuleRequest creates or replaces a rule. IsActive defaults to true.
type RuleRequest struct {
	Name       string            `json:"name" binding:"required"`
	Conditions []model.Condition `json:"conditions" binding:"required"`
	Actions    []model.Action    `json:"actions" binding:"required"`
	IsActive   *bool             `json:"is_active"`
}

// TestRuleRequest limits a dry run to TransactionIDs when set.
type TestRuleRequest struct {
	TransactionIDs []int64 `json:"transaction_ids"`
}

// SampleMatch is one matching transaction and the changes the rule would make.
type SampleMatch struct {
	TransactionID int64          `json:"transaction_id"`
	Description   string         `json:"description"`
	Amount        float64        `json:"amount"`
	Date          time.Time      `json:"date"`
	CategoryID    *int64         `json:"category_id"`
	CategoryName  string         `json:"category_name,omitempty"`
	Changes       map[string]any `json:"changes"`
}

// TestResult summarises a dry run.
type TestResult struct {
	MatchCount    int           `json:"match_count"`
	SampleMatches []SampleMatch `json:"sample_matches"`
	TotalTested   int           `json:"total_tested"`
}

// ApplyResult counts what an apply-to-existing run changed.
type ApplyResult struct {
	RunNo        string  `json:"run_no"`
	RuleID       int64   `json:"rule_id"`
	UpdatedCount int     `json:"updated_count"`
	AffectedIDs  []int64 `json:"affected_ids"`
	Scanned      int     `json:"scanned"`
	Completed    bool    `json:"completed"`
}

func (s *RuleService) List(ctx context.Context, userID int64) ([]model.ProcessingRule, error) {
	return s.ruleRepo.ListByUser(ctx, nil, userID)
}

func (s *RuleService) Get(ctx context.Context, userID, id int64) (*model.ProcessingRule, error) {
	return s.ruleRepo.GetByID(ctx, nil, userID, id)
}

// Create validates the rule and puts it at the top of the user's order.
func (s *RuleService) Create(ctx context.Context, userID int64, req *RuleRequest) (*model.ProcessingRule, error) {
	rule := &model.ProcessingRule{
		UserID:     userID,
		Name:       req.Name,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		IsActive:   true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := rules.Validate(*rule); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		max, err := s.ruleRepo.MaxPriority(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("read max priority: %w", err)
		}
		rule.Priority = max + 1
		return s.ruleRepo.Create(ctx, tx, rule)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("user_id", userID).Int64("rule_id", rule.ID).Int("priority", rule.Priority).Msg("rule created")
	return rule, nil
}

// Update replaces name, conditions, actions and is_active. Priority is kept.
func (s *RuleService) Update(ctx context.Context, userID, id int64, req *RuleRequest) (*model.ProcessingRule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, nil, userID, id)
	if err != nil {
		return nil, err
	}
	rule.Name = req.Name
	rule.Conditions = req.Conditions
	rule.Actions = req.Actions
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := rules.Validate(*rule); err != nil {
		return nil, err
	}
	if err := s.ruleRepo.Update(ctx, nil, rule); err != nil {
		return nil, err
	}
	return s.ruleRepo.GetByID(ctx, nil, userID, id)
}

// Delete is permanent and does not touch transactions the rule already changed.
func (s *RuleService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.ruleRepo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Int64("rule_id", id).Msg("rule deleted")
	return nil
}

// Test dry-runs one rule, active or not, against the given transactions or all
// of the user's transactions. Nothing is written.
func (s *RuleService) Test(ctx context.Context, userID, id int64, req *TestRuleRequest) (*TestResult, error) {
	rule, err := s.ruleRepo.GetByID(ctx, nil, userID, id)
	if err != nil {
		return nil, err
	}
	matcher, err := rules.NewMatcher(*rule)
	if err != nil {
		return nil, err
	}

	var filter repository.TransactionFilter
	if req != nil {
		filter.IDs = req.TransactionIDs
	}
	txs, err := s.txnRepo.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	limit := min(s.cfg.Business.TestSampleLimit, config.MaxTestSampleLimit)
	res := &TestResult{TotalTested: len(txs), SampleMatches: []SampleMatch{}}
	for _, t := range txs {
		if !matcher.Matches(t) {
			continue
		}
		res.MatchCount++
		if len(res.SampleMatches) < limit {
			res.SampleMatches = append(res.SampleMatches, SampleMatch{
				TransactionID: t.ID,
				Description:   t.Description,
				Amount:        t.Amount,
				Date:          t.Date,
				CategoryID:    t.CategoryID,
				Changes:       rules.Plan(t, rule.Actions).Updates(),
			})
		}
	}

	if err := s.fillCategoryNames(ctx, userID, res.SampleMatches); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RuleService) fillCategoryNames(ctx context.Context, userID int64, samples []SampleMatch) error {
	var ids []int64
	for _, m := range samples {
		if m.CategoryID != nil {
			ids = append(ids, *m.CategoryID)
		}
	}
	names, err := s.categoryRepo.NameMap(ctx, userID, ids)
	if err != nil {
		return fmt.Errorf("load category names: %w", err)
	}
	for i := range samples {
		if samples[i].CategoryID != nil {
			samples[i].CategoryName = names[*samples[i].CategoryID]
		}
	}
	return nil
}

// ApplyToExisting runs one rule over every stored transaction of the user, in
// id-ordered chunks of apply_chunk_size, each committed on its own. A
// transaction is written only when the rule matches and at least one target
// field differs, so a second run changes nothing.
//
// Cancelling ctx stops between chunks; the partial result is returned with
// ctx's error and every committed chunk stays valid.
func (s *RuleService) ApplyToExisting(ctx context.Context, userID, id int64) (*ApplyResult, error) {
	release, err := s.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	rule, err := s.ruleRepo.GetByID(ctx, nil, userID, id)
	if err != nil {
		return nil, err
	}
	matcher, err := rules.NewMatcher(*rule)
	if err != nil {
		return nil, err
	}

	res := &ApplyResult{RunNo: idgen.GenerateRunNo(), RuleID: id, AffectedIDs: []int64{}}
	log := s.log.With().Int64("user_id", userID).Int64("rule_id", id).Str("run_no", res.RunNo).Logger()
	size := s.cfg.Business.ApplyChunkSize

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("updated", res.UpdatedCount).Msg("apply cancelled")
			return res, err
		}

		var chunk []model.Transaction
		var affected []int64
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			chunk, err = s.txnRepo.ListChunk(ctx, tx, userID, afterID, size)
			if err != nil {
				return err
			}
			for _, t := range chunk {
				if !matcher.Matches(t) {
					continue
				}
				changes := rules.Plan(t, rule.Actions)
				if changes.Empty() {
					continue
				}
				if err := s.txnRepo.UpdateFields(ctx, tx, userID, t.ID, changes.Updates()); err != nil {
					return fmt.Errorf("update transaction %d: %w", t.ID, err)
				}
				affected = append(affected, t.ID)
			}
			return nil
		})
		if err != nil {
			log.Error().Err(err).Int("updated", res.UpdatedCount).Msg("apply chunk failed")
			return res, err
		}

		res.Scanned += len(chunk)
		res.AffectedIDs = append(res.AffectedIDs, affected...)
		res.UpdatedCount = len(res.AffectedIDs)
		if len(chunk) < size {
			break
		}
		afterID = chunk[len(chunk)-1].ID
	}
	res.Completed = true

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.RuleApplied, model.EventRuleApplied, res.RunNo, map[string]any{
			"user_id":       userID,
			"rule_id":       id,
			"run_no":        res.RunNo,
			"updated_count": res.UpdatedCount,
			"affected_ids":  res.AffectedIDs,
		})
	})
	if err != nil {
		return res, err
	}

	log.Info().Int("scanned", res.Scanned).Int("updated", res.UpdatedCount).Msg("rule applied to existing transactions")
	return res, nil
}

// Reorder assigns priority = len(ids) - index. ids must list every rule of the
// user exactly once; the new order is written in one transaction.
func (s *RuleService) Reorder(ctx context.Context, userID int64, ids []int64) ([]model.ProcessingRule, error) {
	priorities, err := rules.Priorities(ids)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		current, err := s.ruleRepo.ListByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		owned := make(map[int64]bool, len(current))
		for _, r := range current {
			owned[r.ID] = true
		}
		for _, id := range ids {
			if !owned[id] {
				return apperr.NotFound("rule", id)
			}
		}
		if len(ids) != len(current) {
			return apperr.Validation("ids", "must list all %d rules, got %d", len(current), len(ids))
		}
		return s.ruleRepo.ReplacePriorities(ctx, tx, userID, priorities)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("user_id", userID).Int("rules", len(ids)).Msg("rules reordered")
	return s.ruleRepo.ListByUser(ctx, nil, userID)
}

// Move turns a single drag from position from to position to into a full reorder.
func (s *RuleService) Move(ctx context.Context, userID int64, from, to int) ([]model.ProcessingRule, error) {
	current, err := s.ruleRepo.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	order := make([]int64, len(current))
	for i, r := range current {
		order[i] = r.ID
	}
	next, err := rules.Move(order, from, to)
	if err != nil {
		return nil, err
	}
	return s.Reorder(ctx, userID, next)
}

func (s *RuleService) acquire(ctx context.Context, userID int64) (func(), error) {
	release, err := s.locker.Acquire(ctx, lock.RuleSetKey(userID))
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, apperr.Conflict("rule set", userID, "locked")
		}
		return nil, err
	}
	return release, nil
}
