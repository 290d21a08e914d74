package repository

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/model"

	"gorm.io/gorm"
)

type PatternRepository struct {
	db *gorm.DB
}

func NewPatternRepository(db *gorm.DB) *PatternRepository {
	return &PatternRepository{db: db}
}

func (r *PatternRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *PatternRepository) Create(ctx context.Context, tx *gorm.DB, p *model.MerchantPattern) error {
	return r.conn(tx).WithContext(ctx).Create(p).Error
}

// Update rewrites the user-editable columns; usage statistics are untouched.
func (r *PatternRepository) Update(ctx context.Context, p *model.MerchantPattern) error {
	result := r.db.WithContext(ctx).
		Model(&model.MerchantPattern{}).
		Where("id = ? AND user_id = ?", p.ID, p.UserID).
		Updates(map[string]any{
			"pattern":       p.Pattern,
			"kind":          p.Kind,
			"merchant_name": p.MerchantName,
			"category_id":   p.CategoryID,
			"confidence":    p.Confidence,
			"is_active":     p.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("pattern", p.ID)
	}
	return nil
}

func (r *PatternRepository) Delete(ctx context.Context, userID, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.MerchantPattern{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("pattern", id)
	}
	return nil
}

func (r *PatternRepository) GetByID(ctx context.Context, userID, id int64) (*model.MerchantPattern, error) {
	var p model.MerchantPattern
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("pattern", id)
		}
		return nil, err
	}
	return &p, nil
}

func (r *PatternRepository) ListByUser(ctx context.Context, userID int64) ([]model.MerchantPattern, error) {
	var out []model.MerchantPattern
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("confidence DESC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *PatternRepository) ListActive(ctx context.Context, tx *gorm.DB, userID int64) ([]model.MerchantPattern, error) {
	var out []model.MerchantPattern
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// IncrementUsage bumps usage_count in the database, never read-modify-write,
// so concurrent classifications sharing a pattern all count.
func (r *PatternRepository) IncrementUsage(ctx context.Context, tx *gorm.DB, id int64, at time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&model.MerchantPattern{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"last_used":   at,
		}).Error
}
