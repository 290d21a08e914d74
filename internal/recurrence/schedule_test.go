package recurrence

import (
	"testing"
	"time"

	"fintrack/internal/model"

	"github.com/stretchr/testify/require"
)

func candidate(key string, next time.Time) model.SubscriptionCandidate {
	return model.SubscriptionCandidate{MerchantKey: key, PredictedNextDate: next, IntervalDays: 30}
}

func TestUpcoming(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	cands := []model.SubscriptionCandidate{
		candidate("later", now.AddDate(0, 0, 20)),
		candidate("soon", now.AddDate(0, 0, 3)),
		candidate("today", now),
		candidate("past", now.AddDate(0, 0, -1)),
		candidate("edge", now.AddDate(0, 0, 14)),
	}

	got := Upcoming(cands, now, 14)
	require.Len(t, got, 3)
	require.Equal(t, "today", got[0].MerchantKey)
	require.Equal(t, 0, got[0].DaysUntil)
	require.Equal(t, "soon", got[1].MerchantKey)
	require.Equal(t, 3, got[1].DaysUntil)
	require.Equal(t, "edge", got[2].MerchantKey)
}

func TestMissed(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	cands := []model.SubscriptionCandidate{
		candidate("within-grace", now.AddDate(0, 0, -6)),
		candidate("overdue", now.AddDate(0, 0, -7)),
		candidate("long-overdue", now.AddDate(0, 0, -40)),
		candidate("future", now.AddDate(0, 0, 2)),
	}

	got := Missed(cands, now, 6)
	require.Len(t, got, 2)
	require.Equal(t, "long-overdue", got[0].MerchantKey)
	require.Equal(t, -40, got[0].DaysUntil)
	require.Equal(t, "overdue", got[1].MerchantKey)
}

func TestDetectFeedsMissed(t *testing.T) {
	txs := series(1, "NETFLIX.COM", -9.99, 30, 30, 30)
	last := txs[3].Date

	now := last.AddDate(0, 0, 40)
	cands := Detect(txs, Options{Now: now})
	require.Len(t, cands, 1)
	require.Len(t, Missed(cands, now, DefaultGraceDays), 1)
	require.Empty(t, Upcoming(cands, now, 14))
}
