// Package similarity detects near-duplicate interview questions.
//
// Two questions are considered the same when their normalised text (lower
// case, punctuation removed, whitespace collapsed) has a Jaro-Winkler score
// at or above the strict threshold, or when they sound alike word for word
// (Double Metaphone codes mostly overlap) and still clear the looser
// threshold. The second path catches rephrasings such as
// "Walk me through your resume" versus "Walk me thru your résumé".
package similarity

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultStrictThreshold   = 0.92
	defaultPhoneticThreshold = 0.85
	defaultCodeOverlap       = 0.8
)

// Option is a functional option for configuring a [Checker].
type Option func(*Checker)

// WithStrictThreshold sets the Jaro-Winkler score at which two questions are
// duplicates regardless of pronunciation. Default: 0.92.
func WithStrictThreshold(v float64) Option {
	return func(c *Checker) { c.strict = v }
}

// WithPhoneticThreshold sets the Jaro-Winkler score required when the two
// questions also sound alike. Default: 0.85.
func WithPhoneticThreshold(v float64) Option {
	return func(c *Checker) { c.phonetic = v }
}

// Checker compares questions. It is read-only after construction and safe
// for concurrent use.
type Checker struct {
	strict   float64
	phonetic float64
}

// New returns a [Checker] configured with opts.
func New(opts ...Option) *Checker {
	c := &Checker{
		strict:   defaultStrictThreshold,
		phonetic: defaultPhoneticThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Score returns the Jaro-Winkler similarity of the normalised forms of a and b.
func (c *Checker) Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return matchr.JaroWinkler(na, nb, false)
}

// Same reports whether a and b ask the same question.
func (c *Checker) Same(a, b string) bool {
	score := c.Score(a, b)
	if score >= c.strict {
		return true
	}
	if score < c.phonetic {
		return false
	}
	return codeOverlap(Normalize(a), Normalize(b)) >= defaultCodeOverlap
}

// Find returns the first entry of seen that asks the same question as q.
func (c *Checker) Find(q string, seen []string) (string, bool) {
	for _, s := range seen {
		if c.Same(q, s) {
			return s, true
		}
	}
	return "", false
}

// Dedupe returns qs without entries that repeat an earlier one, preserving
// order.
func (c *Checker) Dedupe(qs []string) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if _, dup := c.Find(q, out); dup {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Normalize lower-cases s, drops punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '/':
			space = true
		}
	}
	return b.String()
}

// codeOverlap is the Jaccard index of the Double Metaphone codes of the
// words of a and b.
func codeOverlap(a, b string) float64 {
	ca, cb := codes(strings.Fields(a)), codes(strings.Fields(b))
	if len(ca) == 0 || len(cb) == 0 {
		return 0
	}
	inter := 0
	for code := range ca {
		if _, ok := cb[code]; ok {
			inter++
		}
	}
	union := len(ca) + len(cb) - inter
	return float64(inter) / float64(union)
}

func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if p, _ := matchr.DoubleMetaphone(t); p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}
