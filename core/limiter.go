package core

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedPeers bounds the bucket map. When exceeded every bucket is
// dropped and peers start over with a full burst.
const maxTrackedPeers = 65536

// peerLimiter keeps one token bucket per peer IP.
type peerLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	peers map[string]*rate.Limiter
}

func newPeerLimiter(rps float64, burst int) *peerLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = max(1, int(rps))
	}
	return &peerLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		peers: make(map[string]*rate.Limiter),
	}
}

// allow consumes one token for ip. A nil limiter allows everything.
func (l *peerLimiter) allow(ip net.IP) bool {
	if l == nil {
		return true
	}

	key := ip.String()
	l.mu.Lock()
	limiter, ok := l.peers[key]
	if !ok {
		if len(l.peers) >= maxTrackedPeers {
			clear(l.peers)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.peers[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
