package patterns

import (
	"strings"
	"unicode"

	"fintrack/internal/model"

	"github.com/agnivade/levenshtein"
)

// Card-processor prefixes that precede the merchant in statement descriptions.
var processorPrefixes = []string{"pos ", "sq *", "sq*", "tst*", "tst *", "paypal *", "pp*", "sp *"}

var noiseWords = map[string]bool{
	"com": true, "www": true, "pos": true, "purchase": true, "debit": true,
	"credit": true, "card": true, "payment": true, "visa": true, "mastercard": true,
	"inc": true, "llc": true, "ltd": true, "the": true, "online": true,
}

const (
	tokenWords     = 2
	fuzzyMinLength = 5
	fuzzyMaxEdits  = 2
)

// MerchantToken reduces a raw description to a stable, lowercase merchant key,
// e.g. "SQ *BLUE BOTTLE COFFEE #12" -> "blue bottle". It returns "" when nothing
// usable is left.
func MerchantToken(description string) string {
	s := strings.ToLower(strings.TrimSpace(description))
	for _, p := range processorPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}

	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	out := make([]string, 0, tokenWords)
	for _, w := range words {
		if len(w) < 2 || noiseWords[w] {
			continue
		}
		out = append(out, w)
		if len(out) == tokenWords {
			break
		}
	}
	return strings.Join(out, " ")
}

// Covers reports whether an active pattern with confidence above minConfidence
// already recognizes the merchant. Literal patterns also cover tokens within a
// small edit distance, so "starbucks" covers "starbuck".
func Covers(ps []model.MerchantPattern, token, description string, minConfidence float64) bool {
	if token == "" {
		return false
	}
	m := NewMatcher(ps)
	lower := strings.ToLower(description)
	for i := range m.patterns {
		c := &m.patterns[i]
		if c.p.Confidence <= minConfidence {
			continue
		}
		if c.matches(lower, description) || c.matches(token, token) {
			return true
		}
		if c.re == nil && len(token) >= fuzzyMinLength &&
			levenshtein.ComputeDistance(c.literal, token) <= fuzzyMaxEdits {
			return true
		}
	}
	return false
}

// Learned builds the pattern created when a user accepts a category for a
// description that no existing pattern covers.
func Learned(userID int64, token, merchantName string, categoryID int64, confidence float64) model.MerchantPattern {
	if merchantName == "" {
		merchantName = titleCase(token)
	}
	return model.MerchantPattern{
		UserID:       userID,
		Pattern:      token,
		Kind:         model.PatternKindLiteral,
		MerchantName: merchantName,
		CategoryID:   &categoryID,
		Confidence:   confidence,
		IsActive:     true,
		Source:       model.PatternSourceLearned,
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
