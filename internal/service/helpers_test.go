package service

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/database"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testUser = int64(1)

type testEnv struct {
	db             *gorm.DB
	cfg            *config.Config
	rules          *RuleService
	patterns       *PatternService
	classification *ClassificationService
	subscriptions  *SubscriptionService
	review         *ReviewService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.InitSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Default()
	log := logger.Nop()
	classification := NewClassificationService(db, cfg, log)
	return &testEnv{
		db:             db,
		cfg:            cfg,
		rules:          NewRuleService(db, lock.NewRedisLocker(client, 10*time.Second), cfg, log),
		patterns:       NewPatternService(db, cfg, log),
		classification: classification,
		subscriptions:  NewSubscriptionService(db, cfg, log),
		review:         NewReviewService(db, cfg, classification, log),
	}
}

func (e *testEnv) category(t *testing.T, name string) int64 {
	t.Helper()
	c := &model.Category{UserID: testUser, Name: name}
	require.NoError(t, repository.NewCategoryRepository(e.db).Create(context.Background(), c))
	return c.ID
}

func (e *testEnv) txn(t *testing.T, desc string, amount float64, date time.Time) *model.Transaction {
	t.Helper()
	tx := &model.Transaction{
		UserID:      testUser,
		AccountID:   4,
		Description: desc,
		Amount:      amount,
		Date:        date,
		Source:      model.TransactionSourceManual,
	}
	require.NoError(t, e.transactions().Create(context.Background(), nil, tx))
	return tx
}

func (e *testEnv) transactions() *repository.TransactionRepository {
	return repository.NewTransactionRepository(e.db)
}

func (e *testEnv) reload(t *testing.T, id int64) *model.Transaction {
	t.Helper()
	tx, err := e.transactions().GetByID(context.Background(), nil, testUser, id)
	require.NoError(t, err)
	return tx
}

func (e *testEnv) events(t *testing.T, eventType string) []model.OutboxMessage {
	t.Helper()
	var msgs []model.OutboxMessage
	require.NoError(t, e.db.Where("event_type = ?", eventType).Order("id ASC").Find(&msgs).Error)
	return msgs
}

func containsRule(field, value string) []model.Condition {
	return []model.Condition{{Field: field, Operator: model.OpContains, Value: value}}
}

func setCategory(id int64) []model.Action {
	return []model.Action{{Field: model.ActionCategoryID, Value: itoa(id)}}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
