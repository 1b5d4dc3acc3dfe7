package rpc

import "sync"

// ConnectionState tracks connectivity issues per issuer so repeated
// failures against a backend known to be down are logged quietly until it
// recovers.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type ConnectionState struct {
	mu     sync.RWMutex
	issues map[string]struct{}
}

// NewConnectionState constructs an issue-free tracker.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{issues: make(map[string]struct{})}
}

// AddIssue records an issue for the issuer. Returns true if this is a new
// issue, false if the issuer was already failing.
func (s *ConnectionState) AddIssue(issuer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issues[issuer]; ok {
		return false
	}
	s.issues[issuer] = struct{}{}
	return true
}

// RemoveIssue clears the issuer's issue. Returns true if an issue was
// actually cleared.
func (s *ConnectionState) RemoveIssue(issuer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issues[issuer]; !ok {
		return false
	}
	delete(s.issues, issuer)
	return true
}

// HasIssue reports whether the issuer currently has a recorded issue.
func (s *ConnectionState) HasIssue(issuer string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.issues[issuer]
	return ok
}

// Healthy reports whether no issuer has a recorded issue.
func (s *ConnectionState) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.issues) == 0
}
