package job

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/database"
	"fintrack/internal/infrastructure/mq"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/internal/service"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitSQLite(filepath.Join(t.TempDir(), "job.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func outboxRow(t *testing.T, db *gorm.DB, key string) *model.OutboxMessage {
	t.Helper()
	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  model.EventRuleApplied,
		Topic:      "fintrack.rule.applied",
		Payload:    `{"rule_id":1}`,
		Status:     model.OutboxStatusPending,
	}
	require.NoError(t, repository.NewOutboxRepository(db).Create(context.Background(), nil, msg))
	return msg
}

func reloadOutbox(t *testing.T, db *gorm.DB, id int64) model.OutboxMessage {
	t.Helper()
	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg, id).Error)
	return msg
}

type flakyPublisher struct {
	err  error
	sent []string
}

func (p *flakyPublisher) Publish(topic, key, value string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, key)
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func TestOutboxSenderPublishesThroughKafka(t *testing.T) {
	db := newTestDB(t)
	first := outboxRow(t, db, "RUN1")
	second := outboxRow(t, db, "RUN2")

	producer := mocks.NewSyncProducer(t, mq.NewProducerConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		key, _ := m.Key.Encode()
		if string(key) != "RUN1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()
	publisher := mq.NewKafkaPublisher(producer)
	t.Cleanup(func() { _ = publisher.Close() })

	sender := NewOutboxSender(db, publisher, config.Default(), logger.Nop())
	sender.processPendingMessages(context.Background())

	require.Equal(t, model.OutboxStatusSent, reloadOutbox(t, db, first.ID).Status)
	require.Equal(t, model.OutboxStatusSent, reloadOutbox(t, db, second.ID).Status)
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	db := newTestDB(t)
	cfg := config.Default()
	cfg.Business.MaxRetryCount = 3
	msg := outboxRow(t, db, "RUN1")

	pub := &flakyPublisher{err: errors.New("broker down")}
	sender := NewOutboxSender(db, pub, cfg, logger.Nop())
	ctx := context.Background()

	sender.processPendingMessages(ctx)
	sender.processPendingMessages(ctx)
	got := reloadOutbox(t, db, msg.ID)
	require.Equal(t, model.OutboxStatusPending, got.Status)
	require.Equal(t, 2, got.RetryCount)

	sender.processPendingMessages(ctx)
	got = reloadOutbox(t, db, msg.ID)
	require.Equal(t, model.OutboxStatusFailed, got.Status)
	require.Equal(t, 3, got.RetryCount)

	// failed rows are not picked up again
	pub.err = nil
	sender.processPendingMessages(ctx)
	require.Empty(t, pub.sent)
}

func TestOutboxSenderStops(t *testing.T) {
	db := newTestDB(t)
	sender := NewOutboxSender(db, &flakyPublisher{}, config.Default(), logger.Nop())

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()
	sender.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
}

func TestAutoApproveJobSweepsEveryUser(t *testing.T) {
	db := newTestDB(t)
	cfg := config.Default()
	log := logger.Nop()
	review := service.NewReviewService(db, cfg, service.NewClassificationService(db, cfg, log), log)
	ctx := context.Background()

	account := int64(4)
	ingest := func(userID int64, score float64) *model.ExtractedTransaction {
		e, err := review.Ingest(ctx, userID, &service.IngestRequest{
			Source:          model.TransactionSourceStatement,
			MerchantName:    "Costco",
			Amount:          -80,
			Date:            time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			AccountID:       &account,
			ConfidenceScore: score,
		})
		require.NoError(t, err)
		return e
	}
	a := ingest(1, 0.97)
	b := ingest(2, 0.91)
	low := ingest(2, 0.3)

	j := NewAutoApproveJob(db, review, cfg, log)
	j.sweep(ctx)

	repo := repository.NewExtractedRepository(db)
	for _, tc := range []struct {
		userID int64
		id     int64
		status string
	}{
		{1, a.ID, model.ExtractionStatusApproved},
		{2, b.ID, model.ExtractionStatusApproved},
		{2, low.ID, model.ExtractionStatusPending},
	} {
		e, err := repo.GetByID(ctx, nil, tc.userID, tc.id)
		require.NoError(t, err)
		require.Equal(t, tc.status, e.Status)
	}
}

func TestAutoApproveJobDisabledByDefault(t *testing.T) {
	db := newTestDB(t)
	cfg := config.Default()
	log := logger.Nop()
	review := service.NewReviewService(db, cfg, service.NewClassificationService(db, cfg, log), log)

	done := make(chan struct{})
	go func() {
		NewAutoApproveJob(db, review, cfg, log).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled job should return immediately")
	}
}
