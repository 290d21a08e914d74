package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/config"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/idgen"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	BulkApprove = "approve"
	BulkReject  = "reject"
)

// ReviewService runs the pending -> approved | rejected queue for extracted
// transactions. The extractor's confidence score is carried through untouched.
type ReviewService struct {
	db            *gorm.DB
	cfg           *config.Config
	log           zerolog.Logger
	classifier    *ClassificationService
	extractedRepo *repository.ExtractedRepository
	txnRepo       *repository.TransactionRepository
	outboxRepo    *repository.OutboxRepository
}

// NewReviewService creates a review service that classifies through classifier.
func NewReviewService(db *gorm.DB, cfg *config.Config, classifier *ClassificationService, log zerolog.Logger) *ReviewService {
	return &ReviewService{
		db:            db,
		cfg:           cfg,
		log:           logger.Component(log, "review_service"),
		classifier:    classifier,
		extractedRepo: repository.NewExtractedRepository(db),
		txnRepo:       repository.NewTransactionRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
	}
}

// IngestRequest is one extraction as produced by OCR, email or statement parsing.
type IngestRequest struct {
	Source          string    `json:"source" binding:"required"`
	MerchantName    string    `json:"merchant_name"`
	Amount          float64   `json:"amount"`
	Date            time.Time `json:"date" binding:"required"`
	Description     string    `json:"description"`
	AccountID       *int64    `json:"account_id"`
	ConfidenceScore float64   `json:"confidence_score"`
	RawPayload      string    `json:"raw_payload"`
}

// Overrides replace extracted fields on approval. Nil means keep the extracted value.
type Overrides struct {
	MerchantName *string    `json:"merchant_name"`
	Amount       *float64   `json:"amount"`
	Date         *time.Time `json:"date"`
	Description  *string    `json:"description"`
	AccountID    *int64     `json:"account_id"`
	CategoryID   *int64     `json:"category_id"`
}

// ReviewOutcome is the extraction after a transition, plus the transaction approve created.
type ReviewOutcome struct {
	Extraction     *model.ExtractedTransaction `json:"extraction"`
	Transaction    *model.Transaction          `json:"transaction,omitempty"`
	Classification *Classification            `json:"classification,omitempty"`
}

func (s *ReviewService) Ingest(ctx context.Context, userID int64, req *IngestRequest) (*model.ExtractedTransaction, error) {
	switch req.Source {
	case model.TransactionSourceOCR, model.TransactionSourceEmail, model.TransactionSourceStatement:
	default:
		return nil, apperr.Validation("source", "must be one of ocr, email, statement; got %q", req.Source)
	}
	if req.ConfidenceScore < 0 || req.ConfidenceScore > 1 {
		return nil, apperr.Validation("confidence_score", "must be within [0,1], got %v", req.ConfidenceScore)
	}
	if req.Date.IsZero() {
		return nil, apperr.Validation("date", "is required")
	}
	if strings.TrimSpace(req.MerchantName) == "" && strings.TrimSpace(req.Description) == "" {
		return nil, apperr.Validation("description", "merchant_name or description is required")
	}

	e := &model.ExtractedTransaction{
		ExtractionNo:    idgen.GenerateExtractionNo(),
		UserID:          userID,
		Source:          req.Source,
		MerchantName:    strings.TrimSpace(req.MerchantName),
		Amount:          req.Amount,
		Date:            model.DateOnly(req.Date),
		Description:     strings.TrimSpace(req.Description),
		AccountID:       req.AccountID,
		ConfidenceScore: req.ConfidenceScore,
		Status:          model.ExtractionStatusPending,
		RawPayload:      req.RawPayload,
	}
	if err := s.extractedRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create extraction: %w", err)
	}

	s.log.Info().Int64("user_id", userID).Int64("extraction_id", e.ID).Str("source", e.Source).Float64("confidence", e.ConfidenceScore).Msg("extraction ingested")
	return e, nil
}

func (s *ReviewService) List(ctx context.Context, userID int64, status string) ([]model.ExtractedTransaction, error) {
	if status != "" && !model.IsExtractionStatus(status) {
		return nil, apperr.Validation("status", "unknown status %q", status)
	}
	return s.extractedRepo.List(ctx, userID, status)
}

// Approve merges overrides into the extraction, creates the transaction and
// moves the extraction to approved, all in one DB transaction.
func (s *ReviewService) Approve(ctx context.Context, userID, id int64, overrides *Overrides) (*ReviewOutcome, error) {
	return s.approve(ctx, userID, id, overrides, nil)
}

func (s *ReviewService) approve(ctx context.Context, userID, id int64, overrides *Overrides, c *Classifier) (*ReviewOutcome, error) {
	out := &ReviewOutcome{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		e, err := s.pending(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		t, err := merge(e, overrides)
		if err != nil {
			return err
		}
		if c != nil {
			cl, err := s.classifier.ApplyTo(ctx, tx, c, t)
			if err != nil {
				return err
			}
			out.Classification = &cl
		}
		if err := s.txnRepo.Create(ctx, tx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := s.transition(ctx, tx, e, model.ExtractionStatusApproved, &t.ID); err != nil {
			return err
		}
		if out.Classification != nil {
			out.Classification.TransactionID = t.ID
		}

		out.Transaction = t
		out.Extraction = e
		return writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.ExtractionReviewed, model.EventExtractionApproved, e.ExtractionNo, map[string]any{
			"user_id":          userID,
			"extraction_id":    e.ID,
			"extraction_no":    e.ExtractionNo,
			"transaction_id":   t.ID,
			"confidence_score": e.ConfidenceScore,
			"status":           model.ExtractionStatusApproved,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("user_id", userID).Int64("extraction_id", id).Int64("transaction_id", out.Transaction.ID).Msg("extraction approved")
	return out, nil
}

// Reject is terminal and creates nothing.
func (s *ReviewService) Reject(ctx context.Context, userID, id int64) (*ReviewOutcome, error) {
	out := &ReviewOutcome{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		e, err := s.pending(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, tx, e, model.ExtractionStatusRejected, nil); err != nil {
			return err
		}
		out.Extraction = e
		return writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.ExtractionReviewed, model.EventExtractionRejected, e.ExtractionNo, map[string]any{
			"user_id":       userID,
			"extraction_id": e.ID,
			"extraction_no": e.ExtractionNo,
			"status":        model.ExtractionStatusRejected,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("user_id", userID).Int64("extraction_id", id).Msg("extraction rejected")
	return out, nil
}

// Bulk applies action to each id independently. Every id gets an item in the
// result; a failing id neither stops nor rolls back the others.
func (s *ReviewService) Bulk(ctx context.Context, userID int64, action string, ids []int64) (*BulkResult, error) {
	if action != BulkApprove && action != BulkReject {
		return nil, apperr.Validation("action", "must be approve or reject, got %q", action)
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("ids", "must not be empty")
	}

	res := &BulkResult{Items: make([]BulkItem, 0, len(ids))}
	for _, id := range ids {
		var (
			out *ReviewOutcome
			err error
		)
		if action == BulkApprove {
			out, err = s.Approve(ctx, userID, id, nil)
		} else {
			out, err = s.Reject(ctx, userID, id)
		}
		res.add(id, transactionIDOf(out), err)
	}

	s.log.Info().Int64("user_id", userID).Str("action", action).Int("requested", len(ids)).Int("affected", res.AffectedCount).Msg("bulk review")
	return res, nil
}

// AutoApprove approves every pending extraction whose confidence score is at
// least threshold, classifying each new transaction on the way in. A nil
// threshold uses auto_approve_threshold.
func (s *ReviewService) AutoApprove(ctx context.Context, userID int64, threshold *float64) (*BulkResult, error) {
	limit := s.cfg.Business.AutoApproveThreshold
	if threshold != nil {
		limit = *threshold
	}
	if limit < 0 || limit > 1 {
		return nil, apperr.Validation("threshold", "must be within [0,1], got %v", limit)
	}

	pending, err := s.extractedRepo.ListPendingAbove(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending extractions: %w", err)
	}
	c, err := s.classifier.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Items: make([]BulkItem, 0, len(pending))}
	for _, e := range pending {
		out, err := s.approve(ctx, userID, e.ID, nil, c)
		res.add(e.ID, transactionIDOf(out), err)
	}

	s.log.Info().Int64("user_id", userID).Float64("threshold", limit).Int("approved", res.AffectedCount).Msg("auto approve")
	return res, nil
}

func (s *ReviewService) pending(ctx context.Context, tx *gorm.DB, userID, id int64) (*model.ExtractedTransaction, error) {
	e, err := s.extractedRepo.GetByID(ctx, tx, userID, id)
	if err != nil {
		return nil, err
	}
	if e.Status != model.ExtractionStatusPending {
		return nil, apperr.Conflict("extraction", id, e.Status)
	}
	return e, nil
}

func (s *ReviewService) transition(ctx context.Context, tx *gorm.DB, e *model.ExtractedTransaction, to string, transactionID *int64) error {
	err := s.extractedRepo.Transition(ctx, tx, e.ID, e.Status, to, transactionID)
	if errors.Is(err, repository.ErrExtractionStatusInvalid) {
		// someone else reviewed it between our read and write
		return apperr.Conflict("extraction", e.ID, "reviewed")
	}
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	e.Status = to
	e.TransactionID = transactionID
	e.ReviewedAt = &now
	return nil
}

func merge(e *model.ExtractedTransaction, o *Overrides) (*model.Transaction, error) {
	t := &model.Transaction{
		UserID:       e.UserID,
		Description:  e.Description,
		MerchantName: e.MerchantName,
		Amount:       e.Amount,
		Date:         e.Date,
		Source:       e.Source,
	}
	if e.AccountID != nil {
		t.AccountID = *e.AccountID
	}
	if o != nil {
		if o.MerchantName != nil {
			t.MerchantName = strings.TrimSpace(*o.MerchantName)
		}
		if o.Amount != nil {
			t.Amount = *o.Amount
		}
		if o.Date != nil {
			t.Date = model.DateOnly(*o.Date)
		}
		if o.Description != nil {
			t.Description = strings.TrimSpace(*o.Description)
		}
		if o.AccountID != nil {
			t.AccountID = *o.AccountID
		}
		if o.CategoryID != nil {
			if *o.CategoryID <= 0 {
				return nil, apperr.Validation("category_id", "must be positive")
			}
			id := *o.CategoryID
			t.CategoryID = &id
		}
	}
	if t.Description == "" {
		t.Description = t.MerchantName
	}
	if t.AccountID <= 0 {
		return nil, apperr.Validation("account_id", "is required to approve extraction %d", e.ID)
	}
	if t.Date.IsZero() {
		return nil, apperr.Validation("date", "is required")
	}
	return t, nil
}

func transactionIDOf(out *ReviewOutcome) *int64 {
	if out == nil || out.Transaction == nil {
		return nil
	}
	id := out.Transaction.ID
	return &id
}
