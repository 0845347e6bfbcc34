package throttler

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttler paces probe dispatch. A nil Throttler or one built with a
// non-positive rate never blocks.
type Throttler struct {
	limiter *rate.Limiter
}

func New(rps float64, burst int) *Throttler {
	if rps <= 0 {
		return &Throttler{}
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttler{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the next probe may start or ctx is done.
func (t *Throttler) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}

func (t *Throttler) Enabled() bool {
	return t != nil && t.limiter != nil
}
