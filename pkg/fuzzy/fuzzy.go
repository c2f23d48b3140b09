// Package fuzzy implements the string scoring used to resolve planner-
// supplied author names and source titles against the metadata catalog.
//
// Scores are on a 0-100 scale: 100 is an exact match after normalization.
// The scorer is an indel ratio (levenshtein with substitutions counted as
// insert+delete), which tolerates misspellings like "Leibnitz" vs "Leibniz"
// while keeping unrelated names far apart.
package fuzzy

import "strings"

// Match is a candidate with its score.
type Match struct {
	Value string
	Score int
}

// Ratio returns the similarity of a and b on a 0-100 scale,
// case-insensitively and ignoring surrounding whitespace.
func Ratio(a, b string) int {
	a = normalize(a)
	b = normalize(b)

	if a == b {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	dist := indelDistance(a, b)
	total := len(a) + len(b)

	return int(float64(total-dist) / float64(total) * 100)
}

// ExtractOne returns the best-scoring candidate, or ok=false when the
// candidate list is empty.
func ExtractOne(query string, candidates []string) (Match, bool) {
	best := Match{Score: -1}
	for _, c := range candidates {
		if score := Ratio(query, c); score > best.Score {
			best = Match{Value: c, Score: score}
		}
	}
	return best, best.Score >= 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// indelDistance is the levenshtein distance where substitutions cost 2
// (a delete plus an insert), computed over bytes with a rolling row.
func indelDistance(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = minInt(prev[j], curr[j-1]) + 1
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
