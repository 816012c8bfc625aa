package draw

import (
	"errors"
	"math/rand/v2"
)

// MaxNumber is the top of the tambola range.
const MaxNumber = 90

// ErrExhausted is returned when every number in the range has been called.
var ErrExhausted = errors.New("all numbers have been called")

// Pick selects a uniformly random number in [1, max] that does not appear in
// called. It has no side effects; the caller owns committing the result.
func Pick(called []int, max int, rng *rand.Rand) (int, error) {
	if max <= 0 {
		max = MaxNumber
	}
	seen := make(map[int]bool, len(called))
	for _, n := range called {
		if n >= 1 && n <= max {
			seen[n] = true
		}
	}
	remaining := make([]int, 0, max-len(seen))
	for n := 1; n <= max; n++ {
		if !seen[n] {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == 0 {
		return 0, ErrExhausted
	}
	if rng == nil {
		return remaining[rand.IntN(len(remaining))], nil
	}
	return remaining[rng.IntN(len(remaining))], nil
}
