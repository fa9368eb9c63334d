// Package limiter implements fixed-window request accounting on top of a
// durable per-key counter store.
package limiter

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CounterStore is a keyed counter with per-key read-modify-write
// serialization: for a given key the read and the conditional increment never
// interleave between callers. This is the one synchronization guarantee the
// limiter relies on.
type CounterStore interface {
	// IncrementIfBelow increments the counter at key when its current value
	// is below limit and reports whether the increment happened, together
	// with the value read.
	IncrementIfBelow(ctx context.Context, key string, limit int) (count int, incremented bool, err error)
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed       bool
	RetryAfterSec int
}

type Limiter struct {
	store  CounterStore
	window int64 // seconds
	max    int
	now    func() time.Time
}

func New(store CounterStore, windowSec, max int) *Limiter {
	if windowSec <= 0 {
		windowSec = 60
	}
	if max <= 0 {
		max = 20
	}
	return &Limiter{
		store:  store,
		window: int64(windowSec),
		max:    max,
		now:    time.Now,
	}
}

// Allow accounts one request against the client's current window bucket.
// At the limit the bucket is not incremented and the caller gets the number
// of seconds until the window rolls over.
func (l *Limiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	now := l.now().Unix()
	bucket := clientKey + ":" + strconv.FormatInt(now/l.window, 10)

	_, incremented, err := l.store.IncrementIfBelow(ctx, bucket, l.max)
	if err != nil {
		return Decision{}, err
	}
	if !incremented {
		return Decision{RetryAfterSec: int(l.window - now%l.window)}, nil
	}
	return Decision{Allowed: true}, nil
}

// ClientKey derives the rate-limit identity for a request: the trusted
// proxy-supplied client IP first, then the first forwarded-for entry, then a
// fixed placeholder.
func ClientKey(connectingIP, forwardedFor string) string {
	if connectingIP != "" {
		return connectingIP
	}
	if forwardedFor != "" {
		if i := strings.Index(forwardedFor, ","); i >= 0 {
			forwardedFor = forwardedFor[:i]
		}
		if key := strings.TrimSpace(forwardedFor); key != "" {
			return key
		}
	}
	return "anon"
}
