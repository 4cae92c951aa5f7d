package retry

import (
	"math/rand/v2"
	"time"
)

// WaitDuration returns how long to wait before restarting a failed watch.
// The wait grows by half with every consecutive failure, starting at 0.5s,
// with up to 50% jitter either way. From failure 12 (counting from 0) on
// it stays within (32.4s, 97.4s).
func WaitDuration(retry int) time.Duration {
	n := min(retry, 12)
	second := int(time.Second)

	// start with 0.5s
	duration := second / 2

	// multiply by 1.5 to the power of n
	for i := 0; i < n; i++ {
		duration /= 2
		duration *= 3
	}

	// add or subtract up to 50%
	jitter := rand.IntN(duration) - duration/2
	duration += jitter

	return time.Duration(duration)
}
