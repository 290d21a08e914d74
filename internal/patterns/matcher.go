// Package patterns matches transaction descriptions against a user's merchant
// patterns and decides when an accepted suggestion should become a new pattern.
package patterns

import (
	"regexp"
	"strings"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/model"
)

// Result is the best pattern match for one description.
type Result struct {
	PatternID    int64   `json:"pattern_id"`
	Pattern      string  `json:"pattern"`
	MerchantName string  `json:"merchant_name"`
	CategoryID   *int64  `json:"category_id"`
	Confidence   float64 `json:"confidence"`
}

// Validate rejects patterns that could never be evaluated.
func Validate(p model.MerchantPattern) error {
	if strings.TrimSpace(p.Pattern) == "" {
		return apperr.Validation("pattern", "must not be empty")
	}
	switch p.Kind {
	case model.PatternKindLiteral:
	case model.PatternKindRegex:
		if _, err := regexp.Compile("(?i)" + p.Pattern); err != nil {
			return apperr.Validation("pattern", "invalid regex: %v", err)
		}
	default:
		return apperr.Validation("kind", "unknown kind %q", p.Kind)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return apperr.Validation("confidence", "must be within [0,1], got %v", p.Confidence)
	}
	if p.CategoryID != nil && *p.CategoryID <= 0 {
		return apperr.Validation("category_id", "must be positive")
	}
	return nil
}

type compiled struct {
	p       model.MerchantPattern
	literal string
	re      *regexp.Regexp
}

func (c *compiled) matches(lowerDesc, desc string) bool {
	if c.re != nil {
		return c.re.MatchString(desc)
	}
	return strings.Contains(lowerDesc, c.literal)
}

// Matcher holds the active patterns of one user, compiled once.
type Matcher struct {
	patterns []compiled
}

// NewMatcher compiles the active patterns. Patterns that fail validation are skipped.
func NewMatcher(ps []model.MerchantPattern) *Matcher {
	m := &Matcher{patterns: make([]compiled, 0, len(ps))}
	for _, p := range ps {
		if !p.IsActive || Validate(p) != nil {
			continue
		}
		c := compiled{p: p}
		if p.Kind == model.PatternKindRegex {
			c.re = regexp.MustCompile("(?i)" + p.Pattern)
		} else {
			c.literal = strings.ToLower(strings.TrimSpace(p.Pattern))
		}
		m.patterns = append(m.patterns, c)
	}
	return m
}

// Match returns the best active pattern for description, or false.
// Ties go to higher confidence, then the longer pattern, then the most recently
// used, then the lower id.
func (m *Matcher) Match(description string) (Result, bool) {
	if strings.TrimSpace(description) == "" {
		return Result{}, false
	}
	lower := strings.ToLower(description)

	var best *model.MerchantPattern
	for i := range m.patterns {
		c := &m.patterns[i]
		if !c.matches(lower, description) {
			continue
		}
		if best == nil || better(c.p, *best) {
			best = &c.p
		}
	}
	if best == nil {
		return Result{}, false
	}
	return Result{
		PatternID:    best.ID,
		Pattern:      best.Pattern,
		MerchantName: best.MerchantName,
		CategoryID:   best.CategoryID,
		Confidence:   best.Confidence,
	}, true
}

// Match is the one-shot form of NewMatcher(ps).Match(description).
func Match(description string, ps []model.MerchantPattern) (Result, bool) {
	return NewMatcher(ps).Match(description)
}

func better(a, b model.MerchantPattern) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if la, lb := len(a.Pattern), len(b.Pattern); la != lb {
		return la > lb
	}
	if ua, ub := lastUsed(a), lastUsed(b); !ua.Equal(ub) {
		return ua.After(ub)
	}
	return a.ID < b.ID
}

func lastUsed(p model.MerchantPattern) time.Time {
	if p.LastUsed == nil {
		return time.Time{}
	}
	return *p.LastUsed
}
