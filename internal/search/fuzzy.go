package search

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const DefaultThreshold = 0.6

// Matcher does approximate matching of a query against a few searchable
// projections of a record. A projection matches when it contains the query
// or some query-length window of it is within the edit-distance budget.
type Matcher struct {
	Threshold float64
}

func NewMatcher(threshold float64) Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Normalize lower-cases s and strips all whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Match reports whether query matches any of fields. An empty query matches everything.
func (m Matcher) Match(query string, fields ...string) bool {
	q := Normalize(query)
	if q == "" {
		return true
	}
	for _, field := range fields {
		if m.score(q, Normalize(field)) >= m.Threshold {
			return true
		}
	}
	return false
}

// Score returns the best similarity in [0,1] between query and text.
func (m Matcher) Score(query string, text string) float64 {
	return m.score(Normalize(query), Normalize(text))
}

func (m Matcher) score(q string, text string) float64 {
	if q == "" || text == "" {
		return 0
	}
	if strings.Contains(text, q) {
		return 1
	}

	qr := []rune(q)
	tr := []rune(text)
	if len(tr) <= len(qr) {
		return similarity(levenshtein.ComputeDistance(q, text), max(len(qr), len(tr)))
	}

	best := 0.0
	for i := 0; i+len(qr) <= len(tr); i++ {
		s := similarity(levenshtein.ComputeDistance(q, string(tr[i:i+len(qr)])), len(qr))
		if s > best {
			best = s
		}
	}
	return best
}

func similarity(distance int, length int) float64 {
	if length == 0 {
		return 0
	}
	return 1 - float64(distance)/float64(length)
}
