// Package textmatch picks the search hit that best fits free-text criteria.
// Providers return ranked lists for title/author searches whose first entry
// is often a study guide or a different book with a similar name.
package textmatch

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/lepinkainen/shelfscout/internal/query"
)

// Penalty added when a publisher was asked for but does not match.
const publisherPenalty = 50

type Candidate struct {
	Title     string
	Authors   []string
	Publisher string
}

// Best returns the index of the closest candidate. Title and author, when
// given, must match; ties go to the earlier candidate.
func Best(criteria query.Text, candidates []Candidate) (int, bool) {
	best, bestScore := -1, 0
	for i, c := range candidates {
		score, ok := Score(criteria, c)
		if !ok {
			continue
		}
		if best < 0 || score < bestScore {
			best, bestScore = i, score
		}
	}
	return best, best >= 0
}

// Score is a distance: lower is closer. ok is false when a required field
// does not match at all.
func Score(criteria query.Text, c Candidate) (int, bool) {
	score := 0

	if criteria.Title != "" {
		d := distance(criteria.Title, c.Title)
		if d < 0 {
			return 0, false
		}
		score += d
	}

	if criteria.Author != "" {
		bestAuthor := -1
		for _, a := range c.Authors {
			if d := distance(criteria.Author, a); d >= 0 && (bestAuthor < 0 || d < bestAuthor) {
				bestAuthor = d
			}
		}
		if bestAuthor < 0 {
			return 0, false
		}
		score += bestAuthor
	}

	if criteria.Publisher != "" {
		if d := distance(criteria.Publisher, c.Publisher); d >= 0 {
			score += d
		} else {
			score += publisherPenalty
		}
	}

	return score, true
}

// distance tries both directions so "effective java" matches
// "Effective Java (3rd Edition)" and "The Hobbit, or There and Back Again"
// matches "hobbit".
func distance(want, have string) int {
	want, have = strings.TrimSpace(want), strings.TrimSpace(have)
	if want == "" || have == "" {
		return -1
	}
	if d := fuzzy.RankMatchNormalizedFold(want, have); d >= 0 {
		return d
	}
	return fuzzy.RankMatchNormalizedFold(have, want)
}
