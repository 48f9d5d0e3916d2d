package stream

import (
	"context"

	"golang.org/x/time/rate"
)

// newShaper returns a per-stream byte-rate limiter with one second of
// burst, or nil when shaping is disabled.
func newShaper(bytesPerSecond int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)
}

// throttle blocks until n bytes may be written. Messages larger than the
// burst are paid for in burst-sized installments.
func throttle(ctx context.Context, lim *rate.Limiter, n int) error {
	if lim == nil {
		return nil
	}
	for n > 0 {
		chunk := min(n, lim.Burst())
		if err := lim.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
