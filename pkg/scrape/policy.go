package scrape

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy decides whether a client may issue another scrape.
type Policy interface {
	Allow(key string) bool
}

// RatePolicy gives each client key its own token bucket.
type RatePolicy struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewRatePolicy allows perMinute requests per key, with bursts up to burst.
// A burst of zero means perMinute.
func NewRatePolicy(perMinute, burst int) *RatePolicy {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &RatePolicy{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow consumes one token from key's bucket.
func (p *RatePolicy) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

// Unlimited never denies.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(string) bool { return true }

type clientKey struct{}

// DefaultClientKey is used when the context names no client.
const DefaultClientKey = "unknown"

// WithClientKey tags ctx with the client identity rate limits apply to.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKey{}, key)
}

// ClientKey returns the client identity carried by ctx.
func ClientKey(ctx context.Context) string {
	if key, ok := ctx.Value(clientKey{}).(string); ok && key != "" {
		return key
	}
	return DefaultClientKey
}
