package socketio

import (
	"sync"
)

// ConnectionLimiter caps concurrent remote views. Localhost views (the
// on-device UI) are never limited; when a new remote view exceeds the cap,
// the oldest remote view is evicted so the newest device wins.
type ConnectionLimiter struct {
	mu        sync.Mutex
	maxRemote int

	// remote holds remote client IDs, oldest first.
	remote []string

	// ips maps every tracked client ID to its remote IP.
	ips map[string]string
}

// NewConnectionLimiter creates a limiter allowing up to maxRemote concurrent
// non-localhost views.
func NewConnectionLimiter(maxRemote int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxRemote: maxRemote,
		ips:       make(map[string]string),
	}
}

// TryAdd registers a new view. It returns whether the view is allowed and
// the ID of any evicted view (empty if none).
func (cl *ConnectionLimiter) TryAdd(clientID, remoteIP string) (allowed bool, evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.ips[clientID]; exists {
		return true, ""
	}

	cl.ips[clientID] = remoteIP

	if isLocalIP(remoteIP) {
		return true, ""
	}

	cl.remote = append(cl.remote, clientID)
	if len(cl.remote) > cl.maxRemote {
		evictedID = cl.remote[0]
		cl.remote = cl.remote[1:]
		delete(cl.ips, evictedID)
	}
	return true, evictedID
}

// Remove unregisters a view on disconnect.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	ip, exists := cl.ips[clientID]
	if !exists {
		return
	}
	delete(cl.ips, clientID)

	if isLocalIP(ip) {
		return
	}

	for i, id := range cl.remote {
		if id == clientID {
			cl.remote = append(cl.remote[:i], cl.remote[i+1:]...)
			break
		}
	}
}

func isLocalIP(ip string) bool {
	return ip == "127.0.0.1" || ip == "::1"
}
