// Package dedup decides whether a model-proposed item repeats one already
// stored for the same chat.
package dedup

import (
	"unicode/utf8"

	"github.com/kalambet/wxtodo/internal/extract"
	"github.com/kalambet/wxtodo/internal/items"
)

// Reason names the rule that matched.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonSameMessage        Reason = "same_message"
	ReasonSameTitle          Reason = "same_title"
	ReasonSimilarDescription Reason = "similar_description"
)

const (
	// DefaultThreshold is the Jaccard index a description pair must exceed.
	DefaultThreshold = 0.8
	// minFuzzyLen is the rune count a description must exceed to be compared.
	minFuzzyLen = 10
)

// Engine applies the duplicate rules.
type Engine struct {
	threshold float64
}

// New returns an Engine. A threshold outside (0, 1] falls back to DefaultThreshold.
func New(threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Engine{threshold: threshold}
}

// IsDuplicate checks c against the items of group. Items from other chats
// never match.
func (e *Engine) IsDuplicate(c extract.Candidate, group string, existing []items.Item) (bool, Reason) {
	for _, it := range existing {
		if !it.InGroup(group) {
			continue
		}
		if c.Sender != nil && c.MessageTime != nil && it.Sender != nil && it.MessageTime != nil &&
			*c.Sender == *it.Sender && *c.MessageTime == *it.MessageTime {
			return true, ReasonSameMessage
		}
		if c.Title == it.Title {
			return true, ReasonSameTitle
		}
		if utf8.RuneCountInString(c.Description) > minFuzzyLen &&
			utf8.RuneCountInString(it.Description) > minFuzzyLen &&
			Jaccard(c.Description, it.Description) > e.threshold {
			return true, ReasonSimilarDescription
		}
	}
	return false, ReasonNone
}

// Jaccard is |A∩B| / |A∪B| over the distinct runes of a and b. Two empty
// strings score 0.
func Jaccard(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	union := len(setA)
	inter := 0
	for r := range setB {
		if _, ok := setA[r]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func runeSet(s string) map[rune]struct{} {
	m := make(map[rune]struct{}, len(s))
	for _, r := range s {
		m[r] = struct{}{}
	}
	return m
}
