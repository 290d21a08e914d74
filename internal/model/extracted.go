package model

import "time"

const (
	ExtractionStatusPending  = "pending"
	ExtractionStatusApproved = "approved"
	ExtractionStatusRejected = "rejected"
)

// ValidExtractionTransitions: both targets are terminal.
var ValidExtractionTransitions = map[string][]string{
	ExtractionStatusPending: {ExtractionStatusApproved, ExtractionStatusRejected},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidExtractionTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsExtractionStatus(s string) bool {
	switch s {
	case ExtractionStatusPending, ExtractionStatusApproved, ExtractionStatusRejected:
		return true
	}
	return false
}

// ExtractedTransaction is an unconfirmed record produced by OCR, email or
// statement parsing. ConfidenceScore is opaque and carried through unchanged.
type ExtractedTransaction struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ExtractionNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"extraction_no"`
	UserID          int64      `gorm:"index:idx_ext_user_status,priority:1;not null" json:"user_id"`
	Source          string     `gorm:"type:varchar(20);not null" json:"source"`
	MerchantName    string     `gorm:"type:varchar(255)" json:"merchant_name"`
	Amount          float64    `gorm:"not null" json:"amount"`
	Date            time.Time  `gorm:"not null" json:"date"`
	Description     string     `gorm:"type:varchar(512)" json:"description"`
	AccountID       *int64     `json:"account_id"`
	ConfidenceScore float64    `gorm:"not null" json:"confidence_score"`
	Status          string     `gorm:"type:varchar(20);index:idx_ext_user_status,priority:2;not null" json:"status"`
	RawPayload      string     `gorm:"type:text" json:"raw_payload"`
	TransactionID   *int64     `json:"transaction_id"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ExtractedTransaction) TableName() string {
	return "extracted_transaction"
}
