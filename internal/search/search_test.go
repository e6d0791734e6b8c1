package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/testdock/internal/testtree"
)

func tree() *testtree.Tree {
	b := testtree.NewBuilder("root")
	pkg := b.AddSuite(b.Root(), "internal/parser")
	b.AddTest(pkg, "TestParse")
	b.AddTest(pkg, "TestParseError")
	b.AddTest(pkg, "TestPrettyPrint")
	other := b.AddSuite(b.Root(), "internal/lexer")
	b.AddTest(other, "TestLex")
	return b.Build()
}

func labels(ms []Match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Label)
	}
	return out
}

func TestExactNameRanksFirst(t *testing.T) {
	got := Rank(tree(), "TestParse", 0)
	require.NotEmpty(t, got)
	require.Equal(t, "internal/parser/TestParse", got[0].Label)
	require.Contains(t, labels(got), "internal/parser/TestParseError")
}

func TestSubsequenceMatch(t *testing.T) {
	got := labels(Rank(tree(), "tpp", 0))
	require.Equal(t, []string{"internal/parser/TestPrettyPrint"}, got)
}

func TestTypoFallsBackToEditDistance(t *testing.T) {
	got := labels(Rank(tree(), "TestLxe", 0))
	require.Contains(t, got, "internal/lexer/TestLex")
}

func TestEmptyQueryAndLimit(t *testing.T) {
	require.Nil(t, Rank(tree(), "  ", 0))
	require.Len(t, Rank(tree(), "test", 2), 2)
}

func TestMatchScore(t *testing.T) {
	ok, exact := matchScore("TestLex", "testlex")
	require.True(t, ok)
	ok, partial := matchScore("TestLexer", "testlex")
	require.True(t, ok)
	require.Greater(t, exact, partial)

	ok, boundary := matchScore("TestPrettyPrint", "tpp")
	require.True(t, ok)
	ok, inner := matchScore("TestAppend", "tpp")
	require.True(t, ok)
	require.Greater(t, boundary, inner)

	ok, _ = matchScore("TestLex", "xyz")
	require.False(t, ok)
}

func TestNonASCIINames(t *testing.T) {
	b := testtree.NewBuilder("root")
	pkg := b.AddSuite(b.Root(), "intl")
	b.AddTest(pkg, "TestȺȺȺx")
	b.AddTest(pkg, "TestÜberCase")
	tr := b.Build()

	require.Equal(t, []string{"intl/TestȺȺȺx"}, labels(Rank(tr, "x", 0)))
	require.Equal(t, []string{"intl/TestÜberCase"}, labels(Rank(tr, "überc", 0)))
	require.NotPanics(t, func() { Rank(tr, "TestȺȺȺȺ", 0) })

	ok, score := matchScore("TestȺȺȺx", "ⱥx")
	require.True(t, ok)
	require.Positive(t, score)
}
