// Package dedup suppresses near-duplicate intents with a two-track
// persistent filter. Each track keeps an append-only log mirrored into
// memory; check-and-insert is one atomic operation so two candidates can
// never both be "first".
package dedup

import (
	"strings"
)

// Similarity computes the character-bigram Dice coefficient of two
// strings after whitespace normalization and lowercasing.
//
// Fast paths, in order: normalized exact match is 1 (identity holds for
// every string, the empty one included); one side empty is 0; a length
// difference over 50% of the longer string is 0 without computing
// bigrams.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)

	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	la := len([]rune(a))
	lb := len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if float64(diff)/float64(longer) > 0.5 {
		return 0
	}

	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	shared := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(ba)+len(bb))
}

// normalize lowercases and collapses runs of whitespace to single
// spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// bigrams returns the multiset of adjacent rune pairs.
func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}
