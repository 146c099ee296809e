package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkrupp/ircsvc/internal/infra/metrics"
)

// ErrRateLimited is passed to the RejectFunc when a peer exceeds its budget.
var ErrRateLimited = errors.New("rate limited")

const peerIdleTTL = 5 * time.Minute

type peerEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PeerLimiter keeps a token bucket per peer IP.
type PeerLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	peers map[string]*peerEntry
	now   func() time.Time
}

// NewPeerLimiter returns a limiter allowing perSecond connections per peer
// with the given burst. A nil limiter is returned when perSecond is not positive.
func NewPeerLimiter(perSecond float64, burst int) *PeerLimiter {
	if perSecond <= 0 {
		return nil
	}

	if burst < 1 {
		burst = 1
	}

	return &PeerLimiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		peers: make(map[string]*peerEntry),
		now:   time.Now,
	}
}

// Allow reports whether a connection from addr may proceed.
func (l *PeerLimiter) Allow(addr net.Addr) bool {
	if l == nil {
		return true
	}

	key := peerKey(addr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)

	entry, ok := l.peers[key]
	if !ok {
		entry = &peerEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.peers[key] = entry
	}

	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked peers.
func (l *PeerLimiter) Len() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.peers)
}

// must be called with l.mu held
func (l *PeerLimiter) prune(now time.Time) {
	for key, entry := range l.peers {
		if now.Sub(entry.lastSeen) > peerIdleTTL {
			delete(l.peers, key)
		}
	}
}

func peerKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}

	return host
}

// RateLimitingMiddleware creates middleware that rejects peers exceeding their
// connection budget. Rejected connections are answered through reject, if set.
func RateLimitingMiddleware(next TCPTransport, limiter *PeerLimiter, reject RejectFunc) TCPTransport {
	if limiter == nil {
		return next
	}

	return TCPHandlerFunc(func(ctx context.Context, conn net.Conn) error {
		if !limiter.Allow(conn.RemoteAddr()) {
			metrics.ConnectionsTotal.WithLabelValues("rate_limited").Inc()

			if reject != nil {
				reject(ctx, conn, ErrRateLimited)
			}

			return ErrRateLimited
		}

		return next.ServeConn(ctx, conn)
	})
}
