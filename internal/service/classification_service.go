package service

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/patterns"
	"fintrack/internal/repository"
	"fintrack/internal/rules"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	SourceRule    = "rule"
	SourcePattern = "pattern"
)

// Classification is the outcome of one pass over one transaction.
type Classification struct {
	TransactionID int64          `json:"transaction_id,omitempty"`
	Source        string         `json:"source,omitempty"` // rule, pattern or empty when nothing matched
	RuleID        *int64         `json:"rule_id,omitempty"`
	RuleName      string         `json:"rule_name,omitempty"`
	PatternID     *int64         `json:"pattern_id,omitempty"`
	MerchantName  string         `json:"merchant_name,omitempty"`
	CategoryID    *int64         `json:"category_id,omitempty"`
	CategoryName  string         `json:"category_name,omitempty"`
	Confidence    float64        `json:"confidence"`
	Changes       map[string]any `json:"changes"`
	Applied       bool           `json:"applied"`

	changes   rules.Changes
	autoApply bool
}

// Classifier is a point-in-time snapshot of a user's active rules and patterns.
// It does no I/O, so it can be used inside a DB transaction.
type Classifier struct {
	rules              *rules.Set
	patterns           *patterns.Matcher
	autoApplyThreshold float64
}

// Decide runs rules first. A matching rule wins and any pattern result is
// discarded for this pass; patterns are only consulted when no rule matches.
func (c *Classifier) Decide(t model.Transaction) Classification {
	out := Classification{TransactionID: t.ID, Changes: map[string]any{}}

	if m, ok := c.rules.Evaluate(t); ok {
		id := m.Rule.ID
		out.Source = SourceRule
		out.RuleID = &id
		out.RuleName = m.Rule.Name
		out.Confidence = 1
		out.changes = rules.Plan(t, m.Actions)
		out.autoApply = true
	} else if res, ok := c.patterns.Match(t.Description); ok {
		id := res.PatternID
		out.Source = SourcePattern
		out.PatternID = &id
		out.Confidence = res.Confidence
		out.autoApply = t.CategoryID == nil && res.Confidence >= c.autoApplyThreshold
		var actions []model.Action
		if res.CategoryID != nil {
			actions = append(actions, model.Action{Field: model.ActionCategoryID, Value: fmt.Sprint(*res.CategoryID)})
		}
		if t.MerchantName == "" && res.MerchantName != "" {
			actions = append(actions, model.Action{Field: model.ActionMerchantName, Value: res.MerchantName})
		}
		out.changes = rules.Plan(t, actions)
		out.MerchantName = res.MerchantName
	}

	out.Changes = out.changes.Updates()
	if out.changes.CategoryID != nil {
		id := *out.changes.CategoryID
		out.CategoryID = &id
	} else {
		out.CategoryID = t.CategoryID
	}
	if out.MerchantName == "" {
		out.MerchantName = t.MerchantName
	}
	return out
}

// ClassificationService runs rules, then patterns, over stored transactions.
type ClassificationService struct {
	db           *gorm.DB
	cfg          *config.Config
	log          zerolog.Logger
	ruleRepo     *repository.RuleRepository
	patternRepo  *repository.PatternRepository
	txnRepo      *repository.TransactionRepository
	categoryRepo *repository.CategoryRepository
	now          func() time.Time
}

// NewClassificationService creates a classification service.
func NewClassificationService(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *ClassificationService {
	return &ClassificationService{
		db:           db,
		cfg:          cfg,
		log:          logger.Component(log, "classification_service"),
		ruleRepo:     repository.NewRuleRepository(db),
		patternRepo:  repository.NewPatternRepository(db),
		txnRepo:      repository.NewTransactionRepository(db),
		categoryRepo: repository.NewCategoryRepository(db),
		now:          time.Now,
	}
}

// Snapshot loads the user's active rules and patterns.
func (s *ClassificationService) Snapshot(ctx context.Context, userID int64) (*Classifier, error) {
	rs, err := s.ruleRepo.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	ps, err := s.patternRepo.ListActive(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	return &Classifier{
		rules:              rules.NewSet(rs),
		patterns:           patterns.NewMatcher(ps),
		autoApplyThreshold: s.cfg.Business.AutoApplyPatternThreshold,
	}, nil
}

// Suggest classifies a stored transaction without writing anything.
func (s *ClassificationService) Suggest(ctx context.Context, userID, transactionID int64) (*Classification, error) {
	t, err := s.txnRepo.GetByID(ctx, nil, userID, transactionID)
	if err != nil {
		return nil, err
	}
	c, err := s.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := c.Decide(*t)
	if err := s.fillCategoryName(ctx, userID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Apply classifies a stored transaction and writes the result. Rule actions
// always apply; a pattern's category applies only when the transaction is
// uncategorised and the pattern clears auto_apply_pattern_threshold, and
// otherwise it is kept as suggested_category_id.
func (s *ClassificationService) Apply(ctx context.Context, userID, transactionID int64) (*Classification, error) {
	c, err := s.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out Classification
	err = s.db.Transaction(func(tx *gorm.DB) error {
		t, err := s.txnRepo.GetByID(ctx, tx, userID, transactionID)
		if err != nil {
			return err
		}
		out = c.Decide(*t)
		return s.commit(ctx, tx, userID, t, &out)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("user_id", userID).
		Int64("transaction_id", transactionID).
		Str("source", out.Source).
		Bool("applied", out.Applied).
		Msg("transaction classified")

	if err := s.fillCategoryName(ctx, userID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// commit writes out's changes for the stored transaction t inside tx.
func (s *ClassificationService) commit(ctx context.Context, tx *gorm.DB, userID int64, t *model.Transaction, out *Classification) error {
	if out.Source == "" {
		return nil
	}
	if !out.autoApply {
		if out.changes.CategoryID == nil || sameID(t.SuggestedCategoryID, out.changes.CategoryID) {
			return nil
		}
		return s.txnRepo.UpdateFields(ctx, tx, userID, t.ID, map[string]any{"suggested_category_id": *out.changes.CategoryID})
	}

	if !out.changes.Empty() {
		if err := s.txnRepo.UpdateFields(ctx, tx, userID, t.ID, out.changes.Updates()); err != nil {
			return err
		}
		out.Applied = true
	}
	return s.countUsage(ctx, tx, out)
}

// ApplyTo classifies an unsaved transaction in memory, as part of creating it
// inside tx. Pattern usage is counted in the same tx.
func (s *ClassificationService) ApplyTo(ctx context.Context, tx *gorm.DB, c *Classifier, t *model.Transaction) (Classification, error) {
	out := c.Decide(*t)
	if out.Source == "" {
		return out, nil
	}
	if !out.autoApply {
		t.SuggestedCategoryID = out.changes.CategoryID
		return out, nil
	}
	if !out.changes.Empty() {
		out.changes.Apply(t)
		out.Applied = true
	}
	return out, s.countUsage(ctx, tx, &out)
}

// countUsage records a pattern-driven categorisation. Suggestions never count.
func (s *ClassificationService) countUsage(ctx context.Context, tx *gorm.DB, out *Classification) error {
	if out.Source != SourcePattern || !out.Applied || out.changes.CategoryID == nil {
		return nil
	}
	if err := s.patternRepo.IncrementUsage(ctx, tx, *out.PatternID, s.now().UTC()); err != nil {
		return fmt.Errorf("count pattern %d usage: %w", *out.PatternID, err)
	}
	return nil
}

func (s *ClassificationService) fillCategoryName(ctx context.Context, userID int64, out *Classification) error {
	if out.CategoryID == nil {
		return nil
	}
	names, err := s.categoryRepo.NameMap(ctx, userID, []int64{*out.CategoryID})
	if err != nil {
		return fmt.Errorf("load category name: %w", err)
	}
	out.CategoryName = names[*out.CategoryID]
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
