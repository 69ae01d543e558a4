package timeutil

import (
	"fmt"
	"time"
)

// retryDelayBases are the per-attempt base delays in seconds. Attempts past
// the last entry repeat it.
var retryDelayBases = [...]int64{30, 120, 300, 600, 1200}

// RetryDelay returns the backoff delay before the given retry attempt
// (1-based). The ±10% jitter is derived from the attempt number itself, so
// the same attempt always yields the same delay.
func RetryDelay(attempt int) (time.Duration, error) {
	if attempt < 1 {
		return 0, fmt.Errorf("attempt must be >= 1, got %d", attempt)
	}
	idx := attempt - 1
	if idx >= len(retryDelayBases) {
		idx = len(retryDelayBases) - 1
	}
	base := retryDelayBases[idx]
	jitterPercent := (int64(attempt)*37)%21 - 10
	seconds := int64(float64(base) * (1 + float64(jitterPercent)/100))
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second, nil
}
