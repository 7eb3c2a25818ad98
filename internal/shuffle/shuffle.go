// Package shuffle implements the deterministic per-candidate question
// ordering. Given the same seed and the same input sequence it always yields
// the same permutation, across reloads and devices, so a candidate resuming
// on a different machine sees the same order. The seed (session id) is not
// secret from the server; the only goal is that the candidate cannot predict
// the order in advance.
package shuffle

import (
	"hash/fnv"

	"github.com/stemsi/exstem-client/internal/model"
)

// lcg is a linear-congruential generator (Numerical Recipes constants).
type lcg struct {
	state uint32
}

func (g *lcg) next() uint32 {
	g.state = g.state*1664525 + 1013904223
	return g.state
}

// Seed derives a 32-bit seed from string parts via FNV-1a. Combining the
// session id with the section id makes each section shuffle independently.
func Seed(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum32()
}

// Permute returns a Fisher–Yates permutation of seq driven by seed. Pure:
// the input slice is never mutated. A sequence of length <= 1 is returned
// as a copy, unchanged.
func Permute[T any](seq []T, seed uint32) []T {
	out := make([]T, len(seq))
	copy(out, seq)
	if len(out) <= 1 {
		return out
	}

	g := &lcg{state: seed}
	for i := len(out) - 1; i > 0; i-- {
		j := int(g.next() % uint32(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Questions shuffles a section's question list with the session+section seed
// and renumbers the result 1..N. The renumbering, not the underlying id, is
// what is shown to the candidate and used by navigation grids.
func Questions(sessionID, sectionID string, qs []model.Question) []model.Question {
	out := Permute(qs, Seed(sessionID, sectionID))
	for i := range out {
		out[i].Number = i + 1
	}
	return out
}
