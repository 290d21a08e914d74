package repository

import (
	"context"

	"fintrack/internal/model"

	"gorm.io/gorm"
)

// CategoryRepository serves id -> name lookups for display.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Create(ctx context.Context, category *model.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *CategoryRepository) List(ctx context.Context, userID int64) ([]model.Category, error) {
	var out []model.Category
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&out).Error
	return out, err
}

// NameMap resolves the given ids; unknown ids are simply absent.
func (r *CategoryRepository) NameMap(ctx context.Context, userID int64, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.Category
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.ID] = c.Name
	}
	return out, nil
}
