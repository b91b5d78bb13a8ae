package exam

import "math/rand"

// shuffledCopy returns a uniformly shuffled copy of items, leaving the
// input untouched. Used both to sample questions and to permute choice
// display order.
func shuffledCopy[T any](rng *rand.Rand, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func choiceIDs(choices []Choice) []string {
	ids := make([]string, len(choices))
	for i, c := range choices {
		ids[i] = c.ID
	}
	return ids
}
