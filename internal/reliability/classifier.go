package reliability

import (
	"context"
	"errors"
	"net"
	"time"
)

// RetryableStatus classifies HTTP status codes worth retrying or failing over.
func RetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// TransientError reports whether err looks like a transport-level failure
// (timeouts, connection drops) rather than a definitive remote rejection.
func TransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Backoff computes a deterministic capped exponential backoff for attempt n
// (0-based).
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}
