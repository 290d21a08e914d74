package service

import (
	"context"
	"strings"

	"fintrack/internal/apperr"
	"fintrack/internal/config"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/patterns"
	"fintrack/internal/repository"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PatternService manages merchant patterns and learns new ones from accepted suggestions.
type PatternService struct {
	db          *gorm.DB
	cfg         *config.Config
	log         zerolog.Logger
	patternRepo *repository.PatternRepository
	txnRepo     *repository.TransactionRepository
}

// NewPatternService creates a pattern service.
func NewPatternService(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *PatternService {
	return &PatternService{
		db:          db,
		cfg:         cfg,
		log:         logger.Component(log, "pattern_service"),
		patternRepo: repository.NewPatternRepository(db),
		txnRepo:     repository.NewTransactionRepository(db),
	}
}

// PatternRequest creates or replaces a pattern; nil fields take defaults.
type PatternRequest struct {
	Pattern      string   `json:"pattern" binding:"required"`
	Kind         string   `json:"kind"`
	MerchantName string   `json:"merchant_name"`
	CategoryID   *int64   `json:"category_id"`
	Confidence   *float64 `json:"confidence"`
	IsActive     *bool    `json:"is_active"`
}

// AcceptRequest confirms a category for a transaction.
type AcceptRequest struct {
	CategoryID   int64  `json:"category_id" binding:"required"`
	MerchantName string `json:"merchant_name"`
}

// AcceptResult carries the updated transaction and the pattern learned, if any.
type AcceptResult struct {
	Transaction    *model.Transaction     `json:"transaction"`
	LearnedPattern *model.MerchantPattern `json:"learned_pattern,omitempty"`
}

// MatchResult is a suggestion only; nothing is written to produce it.
type MatchResult struct {
	Matched bool             `json:"matched"`
	Match   *patterns.Result `json:"match,omitempty"`
}

func (s *PatternService) List(ctx context.Context, userID int64) ([]model.MerchantPattern, error) {
	return s.patternRepo.ListByUser(ctx, userID)
}

func (s *PatternService) Get(ctx context.Context, userID, id int64) (*model.MerchantPattern, error) {
	return s.patternRepo.GetByID(ctx, userID, id)
}

func (s *PatternService) Create(ctx context.Context, userID int64, req *PatternRequest) (*model.MerchantPattern, error) {
	p := &model.MerchantPattern{
		UserID:     userID,
		Kind:       model.PatternKindLiteral,
		Confidence: s.cfg.Business.DefaultPatternConfidence,
		IsActive:   true,
		Source:     model.PatternSourceUser,
	}
	applyPatternRequest(p, req)
	if err := patterns.Validate(*p); err != nil {
		return nil, err
	}
	if err := s.patternRepo.Create(ctx, nil, p); err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", userID).Int64("pattern_id", p.ID).Str("pattern", p.Pattern).Msg("pattern created")
	return p, nil
}

// Update edits the definition; usage_count and last_used are never reset.
func (s *PatternService) Update(ctx context.Context, userID, id int64, req *PatternRequest) (*model.MerchantPattern, error) {
	p, err := s.patternRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	applyPatternRequest(p, req)
	if err := patterns.Validate(*p); err != nil {
		return nil, err
	}
	if err := s.patternRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	return s.patternRepo.GetByID(ctx, userID, id)
}

func (s *PatternService) Delete(ctx context.Context, userID, id int64) error {
	return s.patternRepo.Delete(ctx, userID, id)
}

func applyPatternRequest(p *model.MerchantPattern, req *PatternRequest) {
	p.Pattern = strings.TrimSpace(req.Pattern)
	if req.Kind != "" {
		p.Kind = req.Kind
	}
	p.MerchantName = req.MerchantName
	p.CategoryID = req.CategoryID
	if req.Confidence != nil {
		p.Confidence = *req.Confidence
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
}

// Match is suggestion-only: usage statistics are not touched.
func (s *PatternService) Match(ctx context.Context, userID int64, description string) (*MatchResult, error) {
	if strings.TrimSpace(description) == "" {
		return nil, apperr.Validation("description", "must not be empty")
	}
	ps, err := s.patternRepo.ListActive(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	res, ok := patterns.Match(description, ps)
	if !ok {
		return &MatchResult{}, nil
	}
	return &MatchResult{Matched: true, Match: &res}, nil
}

// AcceptSuggestion confirms a category for a transaction and, when no
// sufficiently confident pattern already covers its merchant, learns one.
// This is the only path that creates learned patterns.
func (s *PatternService) AcceptSuggestion(ctx context.Context, userID, transactionID int64, req *AcceptRequest) (*AcceptResult, error) {
	if req.CategoryID <= 0 {
		return nil, apperr.Validation("category_id", "must be positive")
	}

	res := &AcceptResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		t, err := s.txnRepo.GetByID(ctx, tx, userID, transactionID)
		if err != nil {
			return err
		}

		merchant := strings.TrimSpace(req.MerchantName)
		fields := map[string]any{
			"category_id":           req.CategoryID,
			"verified":              true,
			"suggested_category_id": nil,
		}
		if merchant != "" {
			fields["merchant_name"] = merchant
		}
		if err := s.txnRepo.UpdateFields(ctx, tx, userID, t.ID, fields); err != nil {
			return err
		}

		// learned patterns must match future descriptions, so the token comes from the description
		token := patterns.MerchantToken(t.Description)
		if token == "" {
			token = patterns.MerchantToken(firstNonEmpty(merchant, t.MerchantName))
		}
		if merchant == "" {
			merchant = t.MerchantName
		}
		if token != "" {
			existing, err := s.patternRepo.ListActive(ctx, tx, userID)
			if err != nil {
				return err
			}
			if !patterns.Covers(existing, token, t.Description, s.cfg.Business.PatternLearnThreshold) {
				p := patterns.Learned(userID, token, merchant, req.CategoryID, s.cfg.Business.DefaultPatternConfidence)
				if err := s.patternRepo.Create(ctx, tx, &p); err != nil {
					return err
				}
				res.LearnedPattern = &p
			}
		}

		res.Transaction, err = s.txnRepo.GetByID(ctx, tx, userID, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	ev := s.log.Info().Int64("user_id", userID).Int64("transaction_id", transactionID).Int64("category_id", req.CategoryID)
	if res.LearnedPattern != nil {
		ev = ev.Int64("learned_pattern_id", res.LearnedPattern.ID)
	}
	ev.Msg("suggestion accepted")
	return res, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
