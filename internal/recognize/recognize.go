// Package recognize turns utterances into trigger names.
//
// A Recognizer returns ranked text candidates for one utterance; a Resolver
// picks the best candidate, normalizes it, and keeps it only if it names a
// macro in the command table.
package recognize

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/rbright/kombo/internal/segment"
)

// DefaultWordSeparator joins the words of a multi-word trigger.
const DefaultWordSeparator = "_"

// ErrNoMatch is returned when no candidate resolves to a known trigger.
var ErrNoMatch = errors.New("no matching trigger")

// Candidate is one recognition hypothesis.
type Candidate struct {
	Text       string
	Confidence float64
}

// Recognizer transcribes one utterance into ranked candidates.
type Recognizer interface {
	Recognize(ctx context.Context, u segment.Utterance) ([]Candidate, error)
	Close() error
}

// Normalize lowercases text, strips punctuation, and joins the remaining
// words with sep. An empty sep joins them directly.
func Normalize(text string, sep string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r), r == '-', r == '_':
			return ' '
		default:
			return -1
		}
	}, text)
	return strings.Join(strings.Fields(cleaned), sep)
}

// Names lists the trigger names of a command table.
type Names interface {
	Names() []string
}

// Resolution is the outcome of resolving one set of candidates.
type Resolution struct {
	Trigger    string
	Text       string
	Normalized string
	Confidence float64
}

// Conflict records two table names that normalize to the same spoken form.
// Only Kept can be triggered by that form.
type Conflict struct {
	Key      string
	Kept     string
	Shadowed string
}

// Resolver picks the trigger named by the best candidate. Table names are
// indexed under the same normalization as recognized text.
type Resolver struct {
	index         map[string]string
	conflicts     []Conflict
	minConfidence float64
	separator     string
}

// NewResolver builds a resolver over names. Names are indexed in the order
// given; a later name colliding with an earlier one is recorded as a
// Conflict.
func NewResolver(names Names, minConfidence float64, separator string) *Resolver {
	r := &Resolver{
		index:         map[string]string{},
		minConfidence: minConfidence,
		separator:     separator,
	}
	if names == nil {
		return r
	}
	for _, name := range names.Names() {
		key := Normalize(name, separator)
		if key == "" {
			continue
		}
		if kept, ok := r.index[key]; ok {
			r.conflicts = append(r.conflicts, Conflict{Key: key, Kept: kept, Shadowed: name})
			continue
		}
		r.index[key] = name
	}
	return r
}

// Conflicts returns the table names that cannot be reached by voice.
func (r *Resolver) Conflicts() []Conflict {
	return append([]Conflict(nil), r.conflicts...)
}

// Lookup returns the table name text normalizes to.
func (r *Resolver) Lookup(text string) (string, bool) {
	key := Normalize(text, r.separator)
	if key == "" {
		return "", false
	}
	name, ok := r.index[key]
	return name, ok
}

// Resolve normalizes the highest-confidence candidate, keeping the earlier
// one on ties. Candidates below the confidence floor are ignored. The
// returned Resolution carries the attempted text even on ErrNoMatch.
func (r *Resolver) Resolve(candidates []Candidate) (Resolution, error) {
	best := -1
	for i, c := range candidates {
		if c.Confidence < r.minConfidence || strings.TrimSpace(c.Text) == "" {
			continue
		}
		if best < 0 || c.Confidence > candidates[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		return Resolution{}, ErrNoMatch
	}

	top := candidates[best]
	res := Resolution{
		Text:       top.Text,
		Normalized: Normalize(top.Text, r.separator),
		Confidence: top.Confidence,
	}
	name, ok := r.index[res.Normalized]
	if res.Normalized == "" || !ok {
		return res, ErrNoMatch
	}
	res.Trigger = name
	return res, nil
}
