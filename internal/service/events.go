package service

import (
	"context"
	"encoding/json"
	"fmt"

	"fintrack/internal/model"
	"fintrack/internal/repository"

	"gorm.io/gorm"
)

// writeEvent stores an outbox row inside tx; job.OutboxSender publishes it after commit.
func writeEvent(ctx context.Context, tx *gorm.DB, repo *repository.OutboxRepository, topic, eventType, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      topic,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	if err := repo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}
	return nil
}
