package session

import "math/rand/v2"

// Permutation returns the display order of n questions: order[position] is
// the original index shown at that position. With shuffle off, or fewer than
// two questions, it is the identity. rng may be nil to use the global source.
func Permutation(n int, shuffle bool, rng *rand.Rand) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if !shuffle || n < 2 {
		return order
	}

	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	// Fisher-Yates.
	for i := n - 1; i > 0; i-- {
		j := intN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}
