package backoff

// Backoff computes exponentially growing delays, measured in ticks of a
// logical clock, between a bounded number of retries.
type Backoff struct {
	// retries is the maximum number of attempts, zero means unlimited.
	retries  int
	minDelay int64
	maxDelay int64

	attempts int
	last     int64
}

// New creates a new backoff. Set retries to zero to retry forever.
func New(retries int, minDelay, maxDelay int64) *Backoff {
	if minDelay < 1 {
		minDelay = 1
	}

	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return &Backoff{
		retries:  retries,
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Next returns the delay before the next attempt. It returns false once the
// number of retries has been reached, so the caller should stop.
func (b *Backoff) Next() (int64, bool) {
	if b.retries != 0 && b.attempts >= b.retries {
		return 0, false
	}

	b.attempts++

	switch {
	case b.last == 0:
		b.last = b.minDelay
	case b.last*2 > b.maxDelay:
		b.last = b.maxDelay
	default:
		b.last *= 2
	}

	return b.last, true
}

// Attempts returns the number of retries handed out so far.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Exhausted reports whether all retries have been used.
func (b *Backoff) Exhausted() bool {
	return b.retries != 0 && b.attempts >= b.retries
}

// Reset starts over from the minimal delay.
func (b *Backoff) Reset() {
	b.attempts = 0
	b.last = 0
}
