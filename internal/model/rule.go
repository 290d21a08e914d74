package model

import "time"

// Condition fields
const (
	FieldDescription  = "description"
	FieldMerchantName = "merchant_name"
	FieldAmount       = "amount"
	FieldDate         = "date"
	FieldAccountID    = "account_id"
)

// Action fields
const (
	ActionCategoryID   = "category_id"
	ActionTags         = "tags"
	ActionVerified     = "verified"
	ActionDescription  = "description"
	ActionMerchantName = "merchant_name"
)

// Operators
const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpRegex       = "regex"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpBefore      = "before"
	OpAfter       = "after"
)

type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type Action struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ProcessingRule is an ordered condition -> action definition. All conditions
// must hold for the rule to match. Priority is only changed by a reorder.
type ProcessingRule struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64      `gorm:"index:idx_rule_user_priority,priority:1;not null" json:"user_id"`
	Name       string     `gorm:"type:varchar(128);not null" json:"name"`
	Conditions Conditions `gorm:"type:text;not null" json:"conditions"`
	Actions    Actions    `gorm:"type:text;not null" json:"actions"`
	Priority   int        `gorm:"index:idx_rule_user_priority,priority:2;not null" json:"priority"`
	IsActive   bool       `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProcessingRule) TableName() string {
	return "processing_rule"
}
