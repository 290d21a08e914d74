package repository

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/model"

	"gorm.io/gorm"
)

var ErrExtractionStatusInvalid = errors.New("extraction status transition not allowed")

type ExtractedRepository struct {
	db *gorm.DB
}

func NewExtractedRepository(db *gorm.DB) *ExtractedRepository {
	return &ExtractedRepository{db: db}
}

func (r *ExtractedRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *ExtractedRepository) Create(ctx context.Context, e *model.ExtractedTransaction) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *ExtractedRepository) GetByID(ctx context.Context, tx *gorm.DB, userID, id int64) (*model.ExtractedTransaction, error) {
	var e model.ExtractedTransaction
	err := r.conn(tx).WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("extraction", id)
		}
		return nil, err
	}
	return &e, nil
}

// List returns the user's extractions, newest first. An empty status lists all.
func (r *ExtractedRepository) List(ctx context.Context, userID int64, status string) ([]model.ExtractedTransaction, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var out []model.ExtractedTransaction
	err := query.Order("created_at DESC").Order("id DESC").Find(&out).Error
	return out, err
}

// ListPendingAbove returns pending extractions with confidence_score >= threshold, oldest first.
func (r *ExtractedRepository) ListPendingAbove(ctx context.Context, userID int64, threshold float64) ([]model.ExtractedTransaction, error) {
	var out []model.ExtractedTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND confidence_score >= ?", userID, model.ExtractionStatusPending, threshold).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// UsersWithPendingAbove lists users that have pending extractions scored at least threshold.
func (r *ExtractedRepository) UsersWithPendingAbove(ctx context.Context, threshold float64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.ExtractedTransaction{}).
		Where("status = ? AND confidence_score >= ?", model.ExtractionStatusPending, threshold).
		Distinct("user_id").
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}

// Transition moves one extraction from -> to. The status guard in the WHERE
// clause makes a concurrent second reviewer see RowsAffected == 0.
func (r *ExtractedRepository) Transition(ctx context.Context, tx *gorm.DB, id int64, from, to string, transactionID *int64) error {
	if !model.CanTransitionTo(from, to) {
		return ErrExtractionStatusInvalid
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":      to,
		"reviewed_at": &now,
	}
	if transactionID != nil {
		updates["transaction_id"] = *transactionID
	}

	result := r.conn(tx).WithContext(ctx).
		Model(&model.ExtractedTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrExtractionStatusInvalid
	}
	return nil
}
