// Package recurrence finds periodic charges in a user's transaction history.
//
// Detection is a pure batch computation: transactions in, candidates out.
// Persisting a candidate as a Subscription happens elsewhere.
package recurrence

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"fintrack/internal/model"
	"fintrack/internal/patterns"
)

const day = 24 * time.Hour

// Period is a canonical billing interval and the drift it tolerates.
type Period struct {
	Name      string
	Days      int
	Tolerance int
}

// Periods are tried shortest first; their windows do not overlap.
var Periods = []Period{
	{Name: "weekly", Days: 7, Tolerance: 1},
	{Name: "biweekly", Days: 14, Tolerance: 2},
	{Name: "monthly", Days: 30, Tolerance: 3},
	{Name: "quarterly", Days: 91, Tolerance: 5},
	{Name: "yearly", Days: 365, Tolerance: 7},
}

const (
	DefaultLookbackDays   = 365
	DefaultMinOccurrences = 3

	minAmountDrift   = 1.00
	amountDriftRatio = 0.05
)

// Options tune Detect. Zero values fall back to the defaults.
type Options struct {
	LookbackDays   int
	MinOccurrences int
	Now            time.Time
}

func (o Options) withDefaults() Options {
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultLookbackDays
	}
	if o.MinOccurrences < 2 {
		o.MinOccurrences = DefaultMinOccurrences
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// cluster is one merchant/account/amount group.
type cluster struct {
	merchant string
	display  string
	account  int64
	anchor   float64
	txs      []model.Transaction
}

func (c *cluster) key() string {
	return fmt.Sprintf("%s|%.2f|%d", c.merchant, c.anchor, c.account)
}

// Detect groups transactions by normalized merchant, account and amount, and
// returns every group whose dates repeat on a canonical period. Output is
// sorted by confidence, highest first, then by merchant key.
func Detect(txs []model.Transaction, opts Options) []model.SubscriptionCandidate {
	opts = opts.withDefaults()
	today := model.DateOnly(opts.Now)
	from := today.AddDate(0, 0, -opts.LookbackDays)

	window := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		d := model.DateOnly(tx.Date)
		if tx.Date.IsZero() || d.Before(from) || d.After(today) || tx.Amount == 0 {
			continue
		}
		window = append(window, tx)
	}
	sort.SliceStable(window, func(i, j int) bool {
		if !window[i].Date.Equal(window[j].Date) {
			return window[i].Date.Before(window[j].Date)
		}
		return window[i].ID < window[j].ID
	})

	var clusters []*cluster
	index := make(map[string][]*cluster)
	for _, tx := range window {
		merchant := MerchantKey(tx)
		if merchant == "" {
			continue
		}
		gk := fmt.Sprintf("%s|%d|%t", merchant, tx.AccountID, tx.Amount < 0)
		var target *cluster
		for _, c := range index[gk] {
			if math.Abs(tx.Amount-c.anchor) <= driftTolerance(c.anchor) {
				target = c
				break
			}
		}
		if target == nil {
			target = &cluster{merchant: merchant, display: displayName(tx, merchant), account: tx.AccountID, anchor: tx.Amount}
			index[gk] = append(index[gk], target)
			clusters = append(clusters, target)
		}
		target.txs = append(target.txs, tx)
	}

	out := make([]model.SubscriptionCandidate, 0)
	for _, c := range clusters {
		if cand, ok := evaluate(c, today, opts.MinOccurrences); ok {
			out = append(out, cand)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].MerchantKey < out[j].MerchantKey
	})
	return out
}

// MerchantKey is the normalized merchant a transaction is grouped under.
func MerchantKey(tx model.Transaction) string {
	if name := strings.ToLower(strings.Join(strings.Fields(tx.MerchantName), " ")); name != "" {
		return name
	}
	return patterns.MerchantToken(tx.Description)
}

func displayName(tx model.Transaction, merchant string) string {
	if tx.MerchantName != "" {
		return tx.MerchantName
	}
	return strings.ToUpper(merchant)
}

func driftTolerance(anchor float64) float64 {
	return math.Max(minAmountDrift, math.Abs(anchor)*amountDriftRatio)
}

func evaluate(c *cluster, today time.Time, minOccurrences int) (model.SubscriptionCandidate, bool) {
	// same-day charges count once
	dates := make([]time.Time, 0, len(c.txs))
	ids := make([]int64, 0, len(c.txs))
	for _, tx := range c.txs {
		d := model.DateOnly(tx.Date)
		if len(dates) > 0 && dates[len(dates)-1].Equal(d) {
			continue
		}
		dates = append(dates, d)
		ids = append(ids, tx.ID)
	}
	if len(dates) < minOccurrences {
		return model.SubscriptionCandidate{}, false
	}

	deltas := make([]float64, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		deltas = append(deltas, dates[i].Sub(dates[i-1]).Hours()/24)
	}
	mean, stddev := meanStddev(deltas)

	p, ok := periodFor(mean)
	if !ok || stddev > float64(p.Tolerance) {
		return model.SubscriptionCandidate{}, false
	}

	last := dates[len(dates)-1]
	latest := c.txs[len(c.txs)-1]
	cand := model.SubscriptionCandidate{
		MerchantKey:          c.key(),
		MerchantName:         c.display,
		AccountID:            c.account,
		Amount:               math.Round(latest.Amount*100) / 100,
		Frequency:            p.Name,
		IntervalDays:         p.Days,
		MeanIntervalDays:     math.Round(mean*100) / 100,
		Confidence:           confidence(len(deltas), stddev, p, today.Sub(last).Hours()/24),
		Occurrences:          len(dates),
		LastOccurrence:       last,
		PredictedNextDate:    last.AddDate(0, 0, p.Days),
		CategoryID:           latestCategory(c.txs),
		SampleTransactionIDs: ids,
	}
	return cand, true
}

func periodFor(mean float64) (Period, bool) {
	for _, p := range Periods {
		if math.Abs(mean-float64(p.Days)) <= float64(p.Tolerance) {
			return p, true
		}
	}
	return Period{}, false
}

func meanStddev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// confidence blends occurrence count, interval tightness and recency. It
// decays once the last charge is more than one expected period overdue.
func confidence(deltas int, stddev float64, p Period, ageDays float64) float64 {
	count := math.Min(1, float64(deltas)/5)
	tightness := 1 - stddev/float64(p.Tolerance)
	if tightness < 0 {
		tightness = 0
	}
	recency := 1.0
	period := float64(p.Days)
	if ageDays > 2*period {
		recency = period / (ageDays - period)
	}
	c := (0.45*count + 0.35*tightness + 0.20) * recency
	return math.Round(math.Max(0, math.Min(1, c))*1000) / 1000
}

func latestCategory(txs []model.Transaction) *int64 {
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].CategoryID != nil {
			id := *txs[i].CategoryID
			return &id
		}
	}
	return nil
}
