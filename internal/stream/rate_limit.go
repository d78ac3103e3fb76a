package stream

import "sync"

// globalStreamCap bounds open streams across all clients so many distinct
// IPs cannot exhaust server connections together.
const globalStreamCap = 1000

// streamLimiter enforces per-IP and global caps on open position streams.
type streamLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	open     int
	maxPerIP int
}

func newStreamLimiter(maxPerIP int) *streamLimiter {
	if maxPerIP < 1 {
		maxPerIP = 1
	}
	return &streamLimiter{perIP: make(map[string]int), maxPerIP: maxPerIP}
}

// acquire claims a stream slot for ip. The caller must release the slot
// when the stream ends.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open >= globalStreamCap || l.perIP[ip] >= l.maxPerIP {
		return false
	}
	l.perIP[ip]++
	l.open++
	return true
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.perIP[ip]; n <= 1 {
		delete(l.perIP, ip)
	} else {
		l.perIP[ip] = n - 1
	}
	if l.open > 0 {
		l.open--
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}
