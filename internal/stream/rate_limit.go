package stream

import (
	"errors"
	"sync"
)

var (
	errIPLimit    = errors.New("too many concurrent streams from this address")
	errTotalLimit = errors.New("server stream capacity reached")
)

// connLimiter caps concurrent streams per client address and in total,
// across both transports.
type connLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newConnLimiter(maxPerIP, maxTotal int) *connLimiter {
	return &connLimiter{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire registers a stream for ip, or reports which cap refused it.
func (l *connLimiter) acquire(ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return errTotalLimit
	}
	if l.perIP[ip] >= l.maxPerIP {
		return errIPLimit
	}
	l.perIP[ip]++
	l.total++
	return nil
}

// release ends a stream acquired for ip. Releasing an address with no
// streams is a no-op.
func (l *connLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.perIP[ip]
	if !ok {
		return
	}
	if n <= 1 {
		delete(l.perIP, ip)
	} else {
		l.perIP[ip] = n - 1
	}
	l.total--
}

// active returns the streams held by ip and by everyone.
func (l *connLimiter) active(ip string) (perIP, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip], l.total
}
