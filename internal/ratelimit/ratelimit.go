package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"defiwatch-telegram-bot/internal/types"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter bounds the request rate per (identifier, action) pair using fixed
// windows that reset at the window boundary. The increment-and-check runs
// under one mutex so two racing callers cannot both take the last slot.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Enforce counts one request against the window for (identifier, action).
// When the post-increment count exceeds limit it returns a RateLimitError
// carrying the seconds until the window resets.
func (l *Limiter) Enforce(identifier, action string, limit int, windowSize time.Duration) error {
	key := identifier + "|" + action
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowSize)}
		l.windows[key] = w
	}

	w.count++
	if w.count > limit {
		retryAfter := int(w.resetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return &types.RateLimitError{RetryAfter: retryAfter}
	}
	return nil
}

// ClientIdentifier derives a best-effort client identity for limiting:
// forwarded-client header chain, then the direct connection address, then a
// proxy-supplied header, else an anonymous bucket. It is not authenticated.
func ClientIdentifier(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return "anonymous"
}
