package rules

import (
	"math"
	"sort"
	"strings"

	"fintrack/internal/model"
)

const amountEpsilon = 0.005

// Match is the winning rule of one classification pass.
type Match struct {
	Rule    model.ProcessingRule
	Actions []model.Action
}

// Set is an evaluation-ready, ordered view of a user's active rules.
type Set struct {
	rules []*compiledRule
}

// NewSet keeps active rules only, ordered by priority (highest first) with
// insertion order (created_at, then id) breaking ties. Rules that fail to compile
// are left out; they cannot have been persisted through the service layer.
func NewSet(rs []model.ProcessingRule) *Set {
	s := &Set{rules: make([]*compiledRule, 0, len(rs))}
	for _, r := range rs {
		if !r.IsActive {
			continue
		}
		cr, err := compile(r)
		if err != nil {
			continue
		}
		s.rules = append(s.rules, cr)
	}
	sort.SliceStable(s.rules, func(i, j int) bool {
		return before(s.rules[i].rule, s.rules[j].rule)
	})
	return s
}

// Evaluate returns the first rule in priority order whose conditions all hold.
// Only that rule's actions fire; lower-priority matches are suppressed.
func (s *Set) Evaluate(tx model.Transaction) (Match, bool) {
	for _, cr := range s.rules {
		if cr.matches(tx) {
			return Match{Rule: cr.rule, Actions: cr.rule.Actions}, true
		}
	}
	return Match{}, false
}

// Matcher is a compiled single rule, used for dry runs and bulk apply. It
// ignores is_active and priority.
type Matcher struct {
	cr *compiledRule
}

// NewMatcher compiles r, failing with a ValidationError when it does not validate.
func NewMatcher(r model.ProcessingRule) (*Matcher, error) {
	cr, err := compile(r)
	if err != nil {
		return nil, err
	}
	return &Matcher{cr: cr}, nil
}

func (m *Matcher) Matches(tx model.Transaction) bool { return m.cr.matches(tx) }

func before(a, b model.ProcessingRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (cr *compiledRule) matches(tx model.Transaction) bool {
	for i := range cr.conditions {
		if !cr.conditions[i].eval(tx) {
			return false
		}
	}
	return true
}

func (c *condition) eval(tx model.Transaction) bool {
	if c.never {
		return false
	}
	switch c.field {
	case model.FieldDescription:
		return c.evalText(tx.Description)
	case model.FieldMerchantName:
		return c.evalText(tx.MerchantName)
	case model.FieldAmount:
		return c.evalNumber(tx.Amount)
	case model.FieldAccountID:
		return c.evalNumber(float64(tx.AccountID))
	case model.FieldDate:
		return c.evalDate(tx)
	}
	return false
}

func (c *condition) evalText(s string) bool {
	if c.op == model.OpRegex {
		return c.re != nil && c.re.MatchString(s)
	}
	v := strings.ToLower(strings.TrimSpace(s))
	switch c.op {
	case model.OpEquals:
		return v == strings.TrimSpace(c.text)
	case model.OpContains:
		return strings.Contains(v, c.text)
	case model.OpStartsWith:
		return strings.HasPrefix(v, c.text)
	case model.OpEndsWith:
		return strings.HasSuffix(v, c.text)
	}
	return false
}

func (c *condition) evalNumber(n float64) bool {
	switch c.op {
	case model.OpEquals:
		return math.Abs(n-c.num) < amountEpsilon
	case model.OpGreaterThan:
		return n > c.num
	case model.OpLessThan:
		return n < c.num
	}
	return false
}

func (c *condition) evalDate(tx model.Transaction) bool {
	if tx.Date.IsZero() {
		return false
	}
	d := model.DateOnly(tx.Date)
	switch c.op {
	case model.OpEquals:
		return d.Equal(c.date)
	case model.OpBefore:
		return d.Before(c.date)
	case model.OpAfter:
		return d.After(c.date)
	}
	return false
}
