package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/database"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/logger"
	"fintrack/internal/model"
	"fintrack/internal/repository"
	"fintrack/pkg/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	db     *gorm.DB
	router *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()

	db, err := database.InitSQLite(filepath.Join(t.TempDir(), "handler.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.Nop()
	h := NewHandler(db, lock.NewRedisLocker(client, 10*time.Second), config.Default(), log)
	return &server{db: db, router: SetupRouter(h, gin.TestMode, log)}
}

func (s *server) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderUserID, "1")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Code == http.StatusOK && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *server) txn(t *testing.T, desc string) int64 {
	t.Helper()
	tx := &model.Transaction{UserID: 1, AccountID: 4, Description: desc, Amount: -5, Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Source: model.TransactionSourceManual}
	require.NoError(t, repository.NewTransactionRepository(s.db).Create(context.Background(), nil, tx))
	return tx.ID
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuthRequiresUserHeader(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, response.CodeUnauthorized, env.Code)
	require.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestRuleLifecycle(t *testing.T) {
	s := newServer(t)
	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		_, env := s.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
			"name":       name,
			"conditions": []model.Condition{{Field: model.FieldDescription, Operator: model.OpContains, Value: name}},
			"actions":    []model.Action{{Field: model.ActionCategoryID, Value: "7"}},
		})
		require.Equal(t, response.CodeSuccess, env.Code, env.Message)
		var r model.ProcessingRule
		require.NoError(t, json.Unmarshal(env.Data, &r))
		ids = append(ids, r.ID)
	}

	order := []int64{ids[1], ids[2], ids[0]}
	_, env := s.do(t, http.MethodPost, "/api/v1/rules/reorder", ReorderRequest{IDs: order})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	_, env = s.do(t, http.MethodGet, "/api/v1/rules", nil)
	var list []model.ProcessingRule
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 3)
	for i, r := range list {
		require.Equal(t, order[i], r.ID)
		require.Equal(t, 3-i, r.Priority)
	}

	_, env = s.do(t, http.MethodPost, "/api/v1/rules/reorder", ReorderRequest{IDs: order[:2]})
	require.Equal(t, response.CodeParamError, env.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/rules/999", nil)
	require.Equal(t, response.CodeNotFound, env.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/rules/abc", nil)
	require.Equal(t, response.CodeParamError, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/rules", map[string]any{"name": "bad", "conditions": []any{}, "actions": []any{}})
	require.Equal(t, response.CodeParamError, env.Code)
}

func TestTestAndApplyRule(t *testing.T) {
	s := newServer(t)
	hit := s.txn(t, "STARBUCKS #1")
	s.txn(t, "SHELL")

	_, env := s.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":       "coffee",
		"conditions": []model.Condition{{Field: model.FieldDescription, Operator: model.OpContains, Value: "starbucks"}},
		"actions":    []model.Action{{Field: model.ActionCategoryID, Value: "7"}},
	})
	var r model.ProcessingRule
	require.NoError(t, json.Unmarshal(env.Data, &r))

	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/rules/%d/test", r.ID), nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var tested struct {
		MatchCount  int `json:"match_count"`
		TotalTested int `json:"total_tested"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tested))
	require.Equal(t, 1, tested.MatchCount)
	require.Equal(t, 2, tested.TotalTested)

	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/rules/%d/apply", r.ID), nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var applied struct {
		UpdatedCount int     `json:"updated_count"`
		AffectedIDs  []int64 `json:"affected_ids"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &applied))
	require.Equal(t, 1, applied.UpdatedCount)
	require.Equal(t, []int64{hit}, applied.AffectedIDs)
}

func TestClassifyModes(t *testing.T) {
	s := newServer(t)
	id := s.txn(t, "NETFLIX.COM")

	_, env := s.do(t, http.MethodPost, "/api/v1/patterns", map[string]any{"pattern": "netflix", "category_id": 3, "confidence": 0.95})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/transactions/%d/classify", id), nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var out struct {
		Source  string `json:"source"`
		Applied bool   `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, "pattern", out.Source)
	require.False(t, out.Applied)

	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/transactions/%d/classify?mode=apply", id), nil)
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.True(t, out.Applied)

	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/transactions/%d/classify?mode=guess", id), nil)
	require.Equal(t, response.CodeParamError, env.Code)
}

func TestExtractionReviewFlow(t *testing.T) {
	s := newServer(t)

	var ids []int64
	for i := 0; i < 3; i++ {
		_, env := s.do(t, http.MethodPost, "/api/v1/extractions", map[string]any{
			"source":           "email",
			"merchant_name":    "Blue Apron",
			"amount":           -60,
			"date":             "2026-03-01T00:00:00Z",
			"account_id":       4,
			"confidence_score": 0.8,
		})
		require.Equal(t, response.CodeSuccess, env.Code, env.Message)
		var e model.ExtractedTransaction
		require.NoError(t, json.Unmarshal(env.Data, &e))
		ids = append(ids, e.ID)
	}

	_, env := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/extractions/%d/approve", ids[0]), map[string]any{"description": "meal kit"})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/extractions/%d/reject", ids[0]), nil)
	require.Equal(t, response.CodeConflict, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/extractions/bulk", BulkReviewRequest{Action: "approve", IDs: ids})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var bulk struct {
		AffectedCount int `json:"affected_count"`
		Items         []struct {
			ID      int64  `json:"id"`
			Success bool   `json:"success"`
			Code    string `json:"code"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bulk))
	require.Equal(t, 2, bulk.AffectedCount)
	require.Len(t, bulk.Items, 3)
	require.False(t, bulk.Items[0].Success)
	require.Equal(t, "conflict", bulk.Items[0].Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/extractions?status=approved", nil)
	var approved []model.ExtractedTransaction
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	require.Len(t, approved, 3)
}

func TestSubscriptionEndpoints(t *testing.T) {
	s := newServer(t)

	_, env := s.do(t, http.MethodGet, "/api/v1/subscriptions/detect?lookback_days=90", nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	require.JSONEq(t, `[]`, string(env.Data))

	_, env = s.do(t, http.MethodGet, "/api/v1/subscriptions/detect?lookback_days=x", nil)
	require.Equal(t, response.CodeParamError, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]any{
		"merchant_key":    "gym|-30.00|4",
		"merchant_name":   "Gym",
		"account_id":      4,
		"amount":          -30,
		"interval_days":   30,
		"confidence":      0.8,
		"last_occurrence": "2026-03-01T00:00:00Z",
	})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	_, env = s.do(t, http.MethodGet, "/api/v1/subscriptions", nil)
	var subs []model.Subscription
	require.NoError(t, json.Unmarshal(env.Data, &subs))
	require.Len(t, subs, 1)
	require.Equal(t, "monthly", subs[0].Frequency)

	_, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/subscriptions/%d", subs[0].ID), nil)
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var one model.Subscription
	require.NoError(t, json.Unmarshal(env.Data, &one))
	require.Equal(t, "gym|-30.00|4", one.MerchantKey)

	_, env = s.do(t, http.MethodGet, "/api/v1/subscriptions/999", nil)
	require.Equal(t, response.CodeNotFound, env.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/subscriptions/upcoming?days=-1", nil)
	require.Equal(t, response.CodeParamError, env.Code)
}
