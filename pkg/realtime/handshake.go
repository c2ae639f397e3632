package realtime

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// handshakeLimiter throttles websocket handshakes per remote address.
type handshakeLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	idle     time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newHandshakeLimiter(perSecond float64, burst int) *handshakeLimiter {
	return &handshakeLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// allow reports whether a handshake from r may proceed.
func (l *handshakeLimiter) allow(r *http.Request) bool {
	key := remoteIP(r)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup drops limiters idle for longer than l.idle.
func (l *handshakeLimiter) cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

func (l *handshakeLimiter) startCleanup(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.cleanup(now)
			}
		}
	}()
}

func (l *handshakeLimiter) close() {
	if l.cancel != nil {
		l.cancel()
		<-l.done
		l.cancel = nil
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
