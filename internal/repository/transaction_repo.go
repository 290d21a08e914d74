package repository

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// TransactionFilter narrows a user's transactions. Zero values mean no restriction.
type TransactionFilter struct {
	IDs       []int64
	AccountID int64
	From      time.Time
	To        time.Time
	Limit     int
}

func (r *TransactionRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	return r.conn(tx).WithContext(ctx).Create(trans).Error
}

// GetByID only returns the transaction when userID owns it.
func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, userID, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.conn(tx).WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("transaction", id)
		}
		return nil, err
	}
	return &trans, nil
}

// List returns matching transactions ordered by date, then id.
func (r *TransactionRepository) List(ctx context.Context, userID int64, f TransactionFilter) ([]model.Transaction, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(f.IDs) > 0 {
		query = query.Where("id IN ?", f.IDs)
	}
	if f.AccountID > 0 {
		query = query.Where("account_id = ?", f.AccountID)
	}
	if !f.From.IsZero() {
		query = query.Where("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		query = query.Where("date <= ?", f.To)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var out []model.Transaction
	err := query.Order("date ASC").Order("id ASC").Find(&out).Error
	return out, err
}

// ListChunk pages through a user's transactions by id, starting after afterID.
func (r *TransactionRepository) ListChunk(ctx context.Context, tx *gorm.DB, userID, afterID int64, size int) ([]model.Transaction, error) {
	var out []model.Transaction
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND id > ?", userID, afterID).
		Order("id ASC").
		Limit(size).
		Find(&out).Error
	return out, err
}

// UpdateFields writes only the given columns.
func (r *TransactionRepository) UpdateFields(ctx context.Context, tx *gorm.DB, userID, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("transaction", id)
	}
	return nil
}
