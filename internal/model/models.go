package model

// All lists every table owned by this service, in migration order.
func All() []any {
	return []any{
		&Category{},
		&Transaction{},
		&ProcessingRule{},
		&MerchantPattern{},
		&ExtractedTransaction{},
		&Subscription{},
		&OutboxMessage{},
	}
}
