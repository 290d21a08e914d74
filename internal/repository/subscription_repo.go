package repository

import (
	"context"
	"errors"

	"fintrack/internal/apperr"
	"fintrack/internal/model"

	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Create inserts s. The (user_id, merchant_key) index turns a racing second
// insert into a ConflictError.
func (r *SubscriptionRepository) Create(ctx context.Context, tx *gorm.DB, s *model.Subscription) error {
	err := r.conn(tx).WithContext(ctx).Create(s).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("subscription", 0, "tracked for "+s.MerchantKey)
	}
	return err
}

// GetByMerchantKey returns nil, nil when the user has no such subscription.
func (r *SubscriptionRepository) GetByMerchantKey(ctx context.Context, tx *gorm.DB, userID int64, key string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.conn(tx).WithContext(ctx).Where("user_id = ? AND merchant_key = ?", userID, key).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, userID, id int64) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("subscription", id)
		}
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]model.Subscription, error) {
	var out []model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("next_payment_date ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}
