package payouts

import (
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"
)

// Backoff computes retry delays as min(max, base*2^attempt) plus jitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter func(delay time.Duration) time.Duration
}

// Delay returns the wait before retry number attempt (1-based). The schedule
// is rebuilt per call because the attempt count lives on the payout row.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	schedule := retry.NewExponential(b.Base)
	if b.Max > 0 {
		schedule = retry.WithCappedDuration(b.Max, schedule)
	}
	var delay time.Duration
	for i := 0; i <= attempt; i++ {
		next, stop := schedule.Next()
		if stop {
			break
		}
		delay = next
	}

	jitter := b.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}
	return delay + jitter(delay)
}

// defaultJitter adds up to a tenth of the delay.
func defaultJitter(delay time.Duration) time.Duration {
	window := delay / 10
	if window <= 0 {
		return 0
	}
	return rand.N(window)
}

// NoJitter keeps delays deterministic.
func NoJitter(time.Duration) time.Duration { return 0 }
