package shuffle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-client/internal/model"
)

func TestPermuteIsDeterministic(t *testing.T) {
	seq := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	seed := Seed("session-abc", "section-1")

	first := Permute(seq, seed)
	second := Permute(seq, seed)

	assert.Equal(t, first, second, "same seed and input must yield the same order")
}

func TestPermuteIsAPermutation(t *testing.T) {
	seeds := []string{"a", "b", "session-1", "session-2", ""}
	seq := []string{"q1", "q2", "q3", "q4", "q5"}

	for _, s := range seeds {
		out := Permute(seq, Seed(s))
		require.Len(t, out, len(seq))

		counts := map[string]int{}
		for _, v := range out {
			counts[v]++
		}
		for _, v := range seq {
			assert.Equal(t, 1, counts[v], "seed %q lost or duplicated %q", s, v)
		}
	}
}

func TestPermuteDoesNotMutateInput(t *testing.T) {
	seq := []int{1, 2, 3, 4, 5}
	Permute(seq, Seed("any"))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seq)
}

func TestPermuteShortSequencesUnchanged(t *testing.T) {
	assert.Empty(t, Permute([]int{}, 42))
	assert.Equal(t, []int{7}, Permute([]int{7}, 42))
}

func TestSeedDependsOnAllParts(t *testing.T) {
	assert.NotEqual(t, Seed("sess", "sec-a"), Seed("sess", "sec-b"))
	assert.NotEqual(t, Seed("sess-1", "sec"), Seed("sess-2", "sec"))
	// Part boundaries matter: ("ab","c") must differ from ("a","bc").
	assert.NotEqual(t, Seed("ab", "c"), Seed("a", "bc"))
}

func TestQuestionsRenumbersContiguously(t *testing.T) {
	qs := make([]model.Question, 6)
	for i := range qs {
		qs[i] = model.Question{ID: uuid.New(), Number: 99}
	}

	out := Questions("session-id", "section-id", qs)
	require.Len(t, out, 6)

	for i, q := range out {
		assert.Equal(t, i+1, q.Number, "display numbers must be 1..N in shuffled order")
	}
}

func TestQuestionsIndependentPerSection(t *testing.T) {
	qs := make([]model.Question, 8)
	for i := range qs {
		qs[i] = model.Question{ID: uuid.New()}
	}

	a := Questions("session-id", "section-a", qs)
	b := Questions("session-id", "section-b", qs)

	sameOrder := true
	for i := range a {
		if a[i].ID != b[i].ID {
			sameOrder = false
			break
		}
	}
	assert.False(t, sameOrder, "sections must shuffle independently")
}
