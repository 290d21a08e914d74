package model

import "time"

const SubscriptionStatusActive = "active"

// SubscriptionCandidate is derived by recurrence detection and never persisted as such.
type SubscriptionCandidate struct {
	MerchantKey          string    `json:"merchant_key"`
	MerchantName         string    `json:"merchant_name"`
	AccountID            int64     `json:"account_id"`
	Amount               float64   `json:"amount"`
	Frequency            string    `json:"frequency"`
	IntervalDays         int       `json:"interval_days"`
	MeanIntervalDays     float64   `json:"mean_interval_days"`
	Confidence           float64   `json:"confidence"`
	Occurrences          int       `json:"occurrences"`
	LastOccurrence       time.Time `json:"last_occurrence"`
	PredictedNextDate    time.Time `json:"predicted_next_date"`
	CategoryID           *int64    `json:"category_id"`
	SampleTransactionIDs []int64   `json:"sample_transaction_ids"`
}

// Subscription is a candidate the user chose to keep; fields are copied from the candidate.
type Subscription struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"uniqueIndex:idx_sub_user_key,priority:1;not null" json:"user_id"`
	MerchantKey     string    `gorm:"type:varchar(255);uniqueIndex:idx_sub_user_key,priority:2;not null" json:"merchant_key"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	AccountID       int64     `gorm:"not null" json:"account_id"`
	CategoryID      *int64    `json:"category_id"`
	Amount          float64   `gorm:"not null" json:"amount"`
	Frequency       string    `gorm:"type:varchar(20);not null" json:"frequency"`
	IntervalDays    int       `gorm:"not null" json:"interval_days"`
	Confidence      float64   `gorm:"not null" json:"confidence"`
	LastPaymentDate time.Time `gorm:"not null" json:"last_payment_date"`
	NextPaymentDate time.Time `gorm:"index;not null" json:"next_payment_date"`
	Status          string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}
