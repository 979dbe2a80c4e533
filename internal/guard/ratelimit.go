// Package guard holds the pre-persistence gates of the inbound pipeline: a
// per-sender token-bucket rate limiter and a phone-prefix geofilter. Both run
// before any session or message write. State is process-local; races prefer
// under-counting (a throttled sender may lose a token it never spent) over
// double-admitting.
package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor holds a single sender's bucket and the last time it was seen, so
// idle buckets can be evicted.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-sender token-bucket rate limiter keyed by
// "channel:channelUserID". Buckets are created on demand in a mutex-guarded
// map; idle entries are evicted opportunistically during lookups to bound
// memory. Safe for concurrent use.
type Limiter struct {
	lim   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	cleanupN uint64
}

// NewLimiter constructs a Limiter admitting perMinute messages per sender
// with the given burst. Values <= 0 are coerced to 1.
func NewLimiter(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		lim:      rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// Allow reports whether one more message from the sender may enter the
// pipeline, consuming a token when it does.
func (l *Limiter) Allow(channel, channelUserID string) bool {
	return l.AllowLimit(channel, channelUserID, 0)
}

// AllowLimit is Allow with a tenant-configured per-minute budget. perMinute <= 0
// falls back to the limiter's own rate; a changed budget retunes the sender's
// existing bucket in place.
func (l *Limiter) AllowLimit(channel, channelUserID string, perMinute int) bool {
	lim := l.lim
	if perMinute > 0 {
		lim = rate.Limit(float64(perMinute) / 60.0)
	}
	b := l.bucket(channel + ":" + channelUserID)
	if b.Limit() != lim {
		b.SetLimit(lim)
	}
	return b.Allow()
}

// bucket returns (and refreshes) the limiter for key, creating it if absent.
// GC runs before the requested key is touched so an old bucket can be evicted
// even when it is the one being fetched.
func (l *Limiter) bucket(key string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	l.cleanupN++
	if l.cleanupN >= 5000 {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.ttl {
				delete(l.visitors, k)
			}
		}
		l.cleanupN = 0
	}

	if v, ok := l.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		l.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(l.lim, l.burst)
	l.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	l.mu.Unlock()
	return lim
}
