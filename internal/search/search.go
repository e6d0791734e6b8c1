// Package search ranks tests against a typed query for jump-to-test.
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/jask/testdock/internal/testtree"
)

// Match is a ranked candidate.
type Match struct {
	ID    testtree.ID
	Label string
	Score int
}

// Near misses are only offered for queries of at least minTypoQuery bytes
// and within maxTypoDistance edits.
const (
	minTypoQuery    = 5
	maxTypoDistance = 2
)

// Rank returns the nodes of tree matching query, best first. Names that
// contain the query as a subsequence rank above near misses found by edit
// distance.
func Rank(tree *testtree.Tree, query string, limit int) []Match {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	var out []Match
	tree.Walk(tree.Root().ID, func(n *testtree.Node) bool {
		if n.ID == tree.Root().ID {
			return true
		}
		if ok, score := matchScore(n.Name, q); ok {
			out = append(out, Match{ID: n.ID, Label: n.FullName, Score: score + 100})
			return true
		}
		if len(q) < minTypoQuery {
			return true
		}
		if d := typoDistance(n.Name, q); d <= maxTypoDistance {
			out = append(out, Match{ID: n.ID, Label: n.FullName, Score: maxTypoDistance - d})
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		li, lj := strings.ToLower(out[i].Label), strings.ToLower(out[j].Label)
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func typoDistance(name, query string) int {
	n := []rune(strings.ToLower(name))
	q := []rune(strings.ToLower(query))
	if len(n) > len(q) {
		n = n[:len(q)]
	}
	return levenshtein.ComputeDistance(string(n), string(q))
}

// matchScore reports whether query is a case-insensitive subsequence of
// name and how well it matches. Runs of adjacent characters, hits on word
// starts (TestFoo, snake_case, path/parts) and an exact name score higher.
func matchScore(name, query string) (bool, int) {
	rs := []rune(name)
	score := 0
	prev := -2
	pos := 0
	for _, qc := range query {
		qc = unicode.ToLower(qc)
		at := -1
		for i := pos; i < len(rs); i++ {
			if unicode.ToLower(rs[i]) == qc {
				at = i
				break
			}
		}
		if at < 0 {
			return false, 0
		}
		score++
		switch {
		case at == 0:
			score += 10
		case wordStart(rs, at):
			score += 2
		}
		if at == prev+1 {
			score += 3
		}
		prev = at
		pos = at + 1
	}
	if strings.EqualFold(name, query) {
		score += 20
	}
	return true, score
}

func wordStart(rs []rune, i int) bool {
	switch rs[i-1] {
	case '/', '_', '.', '-':
		return true
	}
	return unicode.IsUpper(rs[i]) && unicode.IsLower(rs[i-1])
}
