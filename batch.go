// Pending-write buffer and flush-threshold bookkeeping.
//
// There is no timer thread: the flush-interval threshold is only
// checked when a write arrives, exactly as required of background
// tasks at the engine level. A pending buffer accumulates appended
// bytes until put/flush decides a durability boundary is needed.
package zds

import (
	"time"

	"golang.org/x/time/rate"
)

// pendingBatch tracks how much unflushed work has accumulated since
// the last flush, and whether a threshold has been crossed.
type pendingBatch struct {
	cfg       BatchConfig
	ops       int
	bytes     int64
	lastFlush time.Time

	// limiter debounces interval-triggered flushes only; an explicit
	// Flush() call or a size/count threshold breach always bypasses it.
	limiter *rate.Limiter
}

func newPendingBatch(cfg BatchConfig) *pendingBatch {
	return &pendingBatch{
		cfg:       cfg,
		lastFlush: time.Now(),
		limiter:   rate.NewLimiter(rate.Every(cfg.FlushInterval/4+time.Millisecond), 1),
	}
}

// record accounts for one more queued write of n bytes.
func (p *pendingBatch) record(n int) {
	p.ops++
	p.bytes += int64(n)
}

// reset clears the buffer after a successful flush.
func (p *pendingBatch) reset() {
	p.ops = 0
	p.bytes = 0
	p.lastFlush = time.Now()
}

// shouldFlush reports whether any threshold has been crossed. Size and
// count thresholds are unconditional; the interval threshold is
// additionally rate-limited so a steady trickle of small writes cannot
// force an fsync on every single put once the interval has elapsed.
func (p *pendingBatch) shouldFlush() bool {
	if p.ops == 0 {
		return false
	}
	if p.ops >= p.cfg.MaxOps {
		return true
	}
	if p.bytes >= p.cfg.MaxBytes {
		return true
	}
	if time.Since(p.lastFlush) >= p.cfg.FlushInterval {
		return p.limiter.Allow()
	}
	return false
}
