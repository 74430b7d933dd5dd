package access

import "math/rand/v2"

// SampleQuestions returns min(k, len(bank)) distinct elements of bank in
// random order using a partial Fisher–Yates shuffle. bank is not modified.
// A nil rng uses the global source.
func SampleQuestions[T any](bank []T, k int, rng *rand.Rand) []T {
	n := min(max(k, 0), len(bank))
	pool := make([]T, len(bank))
	copy(pool, bank)

	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	for i := 0; i < n; i++ {
		j := i + intN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n:n]
}
