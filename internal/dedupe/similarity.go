// Package dedupe finds near-duplicate beneficiaries by fuzzy name matching.
package dedupe

import (
	"math"
	"sort"
	"strings"
)

// TokenSortRatio scores the similarity of two names in [0, 100], invariant
// to word order: each name is lowercased, split into whitespace tokens,
// the tokens sorted and rejoined, and the normalized strings compared with
// a Levenshtein ratio. "John Smith" vs "Smith John" scores 100.
func TokenSortRatio(a, b string) int {
	return levenshteinRatio(normalizeName(a), normalizeName(b))
}

// normalizeName produces the canonical token-sorted form of a name.
func normalizeName(name string) string {
	tokens := strings.Fields(strings.ToLower(name))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// levenshteinRatio maps edit distance to a [0, 100] similarity:
// 100 * (1 - distance / max(len(a), len(b))). Symmetric; identical strings
// score 100, completely dissimilar strings of equal length score 0.
func levenshteinRatio(a, b string) int {
	if a == b {
		return 100
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}

// levenshtein computes the edit distance with two rolling rows.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
