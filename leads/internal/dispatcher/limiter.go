package dispatcher

import "sync"

// clientLimiter caps concurrent deliveries per client. A zero limit disables it.
type clientLimiter struct {
	limit int
	mu    sync.Mutex
	used  map[string]int
}

func newClientLimiter(limit int) *clientLimiter {
	return &clientLimiter{limit: limit, used: make(map[string]int)}
}

// tryAcquire takes a slot for clientID without blocking.
func (l *clientLimiter) tryAcquire(clientID string) (release func(), ok bool) {
	if l.limit <= 0 {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used[clientID] >= l.limit {
		return nil, false
	}
	l.used[clientID]++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.used[clientID]--; l.used[clientID] <= 0 {
			delete(l.used, clientID)
		}
	}, true
}
