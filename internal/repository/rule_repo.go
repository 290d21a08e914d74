package repository

import (
	"context"
	"errors"
	"sort"

	"fintrack/internal/apperr"
	"fintrack/internal/model"

	"gorm.io/gorm"
)

// RuleRepository owns each user's ordered rule set.
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *RuleRepository) Create(ctx context.Context, tx *gorm.DB, rule *model.ProcessingRule) error {
	return r.conn(tx).WithContext(ctx).Create(rule).Error
}

// Update rewrites the editable columns. Priority is left alone; only a reorder changes it.
func (r *RuleRepository) Update(ctx context.Context, tx *gorm.DB, rule *model.ProcessingRule) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.ProcessingRule{}).
		Where("id = ? AND user_id = ?", rule.ID, rule.UserID).
		Updates(map[string]any{
			"name":       rule.Name,
			"conditions": rule.Conditions,
			"actions":    rule.Actions,
			"is_active":  rule.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("rule", rule.ID)
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, userID, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.ProcessingRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("rule", id)
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, tx *gorm.DB, userID, id int64) (*model.ProcessingRule, error) {
	var rule model.ProcessingRule
	err := r.conn(tx).WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("rule", id)
		}
		return nil, err
	}
	return &rule, nil
}

// ListByUser returns every rule in evaluation order: priority desc, then insertion order.
func (r *RuleRepository) ListByUser(ctx context.Context, tx *gorm.DB, userID int64) ([]model.ProcessingRule, error) {
	var rules []model.ProcessingRule
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("priority DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *RuleRepository) ListActive(ctx context.Context, userID int64) ([]model.ProcessingRule, error) {
	var rules []model.ProcessingRule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("priority DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

// MaxPriority is 0 for a user without rules.
func (r *RuleRepository) MaxPriority(ctx context.Context, tx *gorm.DB, userID int64) (int, error) {
	var max int
	err := r.conn(tx).WithContext(ctx).
		Model(&model.ProcessingRule{}).
		Where("user_id = ?", userID).
		Select("COALESCE(MAX(priority), 0)").
		Row().
		Scan(&max)
	return max, err
}

// ReplacePriorities writes the whole assignment. It must run inside tx so the
// new ordering lands all at once. Ownership is checked up front: MySQL reports
// zero affected rows for an UPDATE that leaves the priority unchanged.
func (r *RuleRepository) ReplacePriorities(ctx context.Context, tx *gorm.DB, userID int64, priorities map[int64]int) error {
	ids := make([]int64, 0, len(priorities))
	for id := range priorities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var owned []int64
	if err := tx.WithContext(ctx).
		Model(&model.ProcessingRule{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Pluck("id", &owned).Error; err != nil {
		return err
	}
	if len(owned) != len(ids) {
		found := make(map[int64]bool, len(owned))
		for _, id := range owned {
			found[id] = true
		}
		for _, id := range ids {
			if !found[id] {
				return apperr.NotFound("rule", id)
			}
		}
	}

	for _, id := range ids {
		if err := tx.WithContext(ctx).
			Model(&model.ProcessingRule{}).
			Where("id = ? AND user_id = ?", id, userID).
			UpdateColumn("priority", priorities[id]).Error; err != nil {
			return err
		}
	}
	return nil
}
