package model

import "time"

const (
	PatternKindLiteral = "literal"
	PatternKindRegex   = "regex"
)

const (
	PatternSourceUser    = "user"
	PatternSourceLearned = "learned"
)

// MerchantPattern maps a description fragment to a canonical merchant and category.
// UsageCount only ever grows; patterns are never removed automatically.
type MerchantPattern struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64      `gorm:"index;not null" json:"user_id"`
	Pattern      string     `gorm:"type:varchar(255);not null" json:"pattern"`
	Kind         string     `gorm:"type:varchar(16);not null" json:"kind"`
	MerchantName string     `gorm:"type:varchar(255)" json:"merchant_name"`
	CategoryID   *int64     `json:"category_id"`
	Confidence   float64    `gorm:"not null" json:"confidence"`
	UsageCount   int64      `gorm:"not null;default:0" json:"usage_count"`
	LastUsed     *time.Time `json:"last_used"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	Source       string     `gorm:"type:varchar(16);not null" json:"source"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MerchantPattern) TableName() string {
	return "merchant_pattern"
}
