package model

import (
	"strings"
	"time"
)

const (
	TransactionSourceManual    = "manual"
	TransactionSourceStatement = "statement"
	TransactionSourceOCR       = "ocr"
	TransactionSourceEmail     = "email"
)

// Transaction is the user's financial record. The classification core only
// mutates it through explicit rule/pattern actions or review approval.
type Transaction struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              int64     `gorm:"index:idx_txn_user_date,priority:1;not null" json:"user_id"`
	AccountID           int64     `gorm:"index;not null" json:"account_id"`
	Description         string    `gorm:"type:varchar(512);not null" json:"description"`
	MerchantName        string    `gorm:"type:varchar(255)" json:"merchant_name"`
	Amount              float64   `gorm:"not null" json:"amount"` // positive inflow, negative outflow
	Date                time.Time `gorm:"index:idx_txn_user_date,priority:2;not null" json:"date"`
	CategoryID          *int64    `gorm:"index" json:"category_id"`
	SuggestedCategoryID *int64    `json:"suggested_category_id"`
	Tags                Tags      `gorm:"type:text" json:"tags"`
	Verified            bool      `gorm:"not null" json:"verified"`
	Source              string    `gorm:"type:varchar(20);not null" json:"source"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Category is only consulted for id -> name display lookups.
type Category struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Category) TableName() string {
	return "category"
}

// DateOnly truncates t to midnight UTC; every comparison on transaction dates is day-granular.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
