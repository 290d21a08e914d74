package recurrence

import (
	"sort"
	"time"

	"fintrack/internal/model"
)

const DefaultGraceDays = 6

// Renewal is a candidate annotated relative to a reference day.
type Renewal struct {
	model.SubscriptionCandidate
	// DaysUntil is negative when the predicted date has passed.
	DaysUntil int `json:"days_until"`
}

// Upcoming returns candidates predicted within the next days, today included,
// soonest first.
func Upcoming(cands []model.SubscriptionCandidate, now time.Time, days int) []Renewal {
	today := model.DateOnly(now)
	until := today.AddDate(0, 0, days)
	out := make([]Renewal, 0)
	for _, c := range cands {
		next := model.DateOnly(c.PredictedNextDate)
		if next.Before(today) || next.After(until) {
			continue
		}
		out = append(out, Renewal{SubscriptionCandidate: c, DaysUntil: daysBetween(today, next)})
	}
	sortRenewals(out)
	return out
}

// Missed returns candidates whose predicted date passed more than graceDays
// ago. The candidate's last occurrence is the latest matching charge, so a
// passed prediction means nothing has arrived since.
func Missed(cands []model.SubscriptionCandidate, now time.Time, graceDays int) []Renewal {
	if graceDays < 0 {
		graceDays = DefaultGraceDays
	}
	today := model.DateOnly(now)
	out := make([]Renewal, 0)
	for _, c := range cands {
		next := model.DateOnly(c.PredictedNextDate)
		if !next.AddDate(0, 0, graceDays).Before(today) {
			continue
		}
		out = append(out, Renewal{SubscriptionCandidate: c, DaysUntil: daysBetween(today, next)})
	}
	sortRenewals(out)
	return out
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Round(day) / day)
}

func sortRenewals(rs []Renewal) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].PredictedNextDate.Equal(rs[j].PredictedNextDate) {
			return rs[i].PredictedNextDate.Before(rs[j].PredictedNextDate)
		}
		return rs[i].MerchantKey < rs[j].MerchantKey
	})
}
