package exam

import (
	"math/rand"
	"testing"
)

func TestShuffledCopy(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	in := []string{"a", "b", "c", "d", "e"}

	out := shuffledCopy(rng, in)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	seen := map[string]int{}
	for _, v := range out {
		seen[v]++
	}
	for _, v := range in {
		if seen[v] != 1 {
			t.Errorf("element %q occurs %d times", v, seen[v])
		}
	}

	// input stays untouched
	for i, v := range []string{"a", "b", "c", "d", "e"} {
		if in[i] != v {
			t.Fatalf("input mutated at %d: %v", i, in)
		}
	}
}

func TestShuffledCopy_Empty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if out := shuffledCopy(rng, []string(nil)); len(out) != 0 {
		t.Errorf("shuffle of nil = %v", out)
	}
}

func TestChoiceIDs(t *testing.T) {
	cs := []Choice{{ID: "x"}, {ID: "y"}, {ID: "z"}}
	ids := choiceIDs(cs)
	if len(ids) != 3 || ids[0] != "x" || ids[2] != "z" {
		t.Errorf("ids = %v", ids)
	}
}
