package analysisclient

import (
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket limits the number of frames that we upload per second.
// The bucket holds at most perSecond tokens, and starts full.
type TokenBucket struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewTokenBucket creates a full bucket. If now is nil, time.Now is used.
func NewTokenBucket(perSecond int, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		now:     now,
	}
}

// Take consumes one token, and returns true if a token was available
func (t *TokenBucket) Take() bool {
	return t.limiter.AllowN(t.now(), 1)
}

// Tokens returns the number of tokens available right now
func (t *TokenBucket) Tokens() float64 {
	return t.limiter.TokensAt(t.now())
}

func (t *TokenBucket) Capacity() int {
	return t.limiter.Burst()
}
