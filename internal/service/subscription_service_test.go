package service

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/model"

	"github.com/stretchr/testify/require"
)

// netflix books six monthly charges with gaps 30, 28, 32, 29, 31 and returns the last date.
func (e *testEnv) netflix(t *testing.T) time.Time {
	t.Helper()
	d := day0
	e.txn(t, "NETFLIX.COM", -15.49, d)
	for _, gap := range []int{30, 28, 32, 29, 31} {
		d = d.AddDate(0, 0, gap)
		e.txn(t, "NETFLIX.COM", -15.49, d)
	}
	return d
}

func (e *testEnv) at(now time.Time) {
	e.subscriptions.now = func() time.Time { return now }
}

func TestDetectMonthlySubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	last := env.netflix(t)
	env.txn(t, "SHELL OIL 5541", -40, day0.AddDate(0, 0, 3))
	env.at(last.AddDate(0, 0, 2))

	cands, err := env.subscriptions.Detect(ctx, testUser, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	require.Equal(t, "netflix|-15.49|4", c.MerchantKey)
	require.Equal(t, "monthly", c.Frequency)
	require.Equal(t, 30, c.IntervalDays)
	require.Equal(t, 6, c.Occurrences)
	require.Greater(t, c.Confidence, 0.7)
	require.Equal(t, last, c.LastOccurrence)
	require.Equal(t, last.AddDate(0, 0, 30), c.PredictedNextDate)

	// nothing is persisted by detection
	subs, err := env.subscriptions.List(ctx, testUser)
	require.NoError(t, err)
	require.Empty(t, subs)

	_, err = env.subscriptions.Detect(ctx, testUser, -1)
	require.True(t, apperr.IsValidation(err))
}

func TestDetectRespectsLookback(t *testing.T) {
	env := newTestEnv(t)
	last := env.netflix(t)
	env.at(last.AddDate(0, 0, 2))

	cands, err := env.subscriptions.Detect(context.Background(), testUser, 60)
	require.NoError(t, err)
	require.Empty(t, cands)
}

func TestCreateSubscriptionOncePerMerchant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	last := env.netflix(t)
	env.at(last.AddDate(0, 0, 2))

	cands, err := env.subscriptions.Detect(ctx, testUser, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	sub, err := env.subscriptions.Create(ctx, testUser, &cands[0])
	require.NoError(t, err)
	require.Equal(t, "NETFLIX", sub.Name)
	require.Equal(t, -15.49, sub.Amount)
	require.Equal(t, model.SubscriptionStatusActive, sub.Status)
	require.Equal(t, last.AddDate(0, 0, 30), sub.NextPaymentDate)
	require.Len(t, env.events(t, model.EventSubscriptionCreated), 1)

	_, err = env.subscriptions.Create(ctx, testUser, &cands[0])
	require.True(t, apperr.IsConflict(err))

	// another user may track the same merchant key
	_, err = env.subscriptions.Create(ctx, 2, &cands[0])
	require.NoError(t, err)

	subs, err := env.subscriptions.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.subscriptions.Create(ctx, testUser, &model.SubscriptionCandidate{MerchantKey: "gym", IntervalDays: 0, Confidence: 0.5, LastOccurrence: day0})
	require.True(t, apperr.IsValidation(err))

	_, err = env.subscriptions.Create(ctx, testUser, &model.SubscriptionCandidate{MerchantKey: " ", IntervalDays: 30, Confidence: 0.5, LastOccurrence: day0})
	require.True(t, apperr.IsValidation(err))

	// manual candidates get a frequency from their interval
	sub, err := env.subscriptions.Create(ctx, testUser, &model.SubscriptionCandidate{MerchantKey: "gym|-30.00|4", IntervalDays: 7, Confidence: 0.5, LastOccurrence: day0})
	require.NoError(t, err)
	require.Equal(t, "weekly", sub.Frequency)
	require.Equal(t, "gym", sub.Name)
	require.Equal(t, day0.AddDate(0, 0, 7), sub.NextPaymentDate)
}

func TestUpcomingAndMissedRenewals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	last := env.netflix(t)
	next := last.AddDate(0, 0, 30)

	env.at(last.AddDate(0, 0, 20))
	upcoming, err := env.subscriptions.Upcoming(ctx, testUser, 0)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.Equal(t, 10, upcoming[0].DaysUntil)

	missed, err := env.subscriptions.Missed(ctx, testUser, -1)
	require.NoError(t, err)
	require.Empty(t, missed)

	// past the predicted date plus grace with no charge since
	env.at(next.AddDate(0, 0, 10))
	upcoming, err = env.subscriptions.Upcoming(ctx, testUser, 0)
	require.NoError(t, err)
	require.Empty(t, upcoming)

	missed, err = env.subscriptions.Missed(ctx, testUser, -1)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	require.Equal(t, next, missed[0].PredictedNextDate)

	_, err = env.subscriptions.Upcoming(ctx, testUser, -3)
	require.True(t, apperr.IsValidation(err))
}
