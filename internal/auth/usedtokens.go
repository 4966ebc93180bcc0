package auth

import "sync"

// UsedTokenSet records redeemed single-use tokens for the life of the process.
// Entries are never evicted and are not shared between processes, so a
// multi-instance deployment gets no cross-instance single-use guarantee.
type UsedTokenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewUsedTokenSet returns an empty set.
func NewUsedTokenSet() *UsedTokenSet {
	return &UsedTokenSet{seen: make(map[string]struct{})}
}

var processUsedTokens = NewUsedTokenSet()

// ProcessUsedTokens returns the set shared by every TokenService that was not
// given its own.
func ProcessUsedTokens() *UsedTokenSet {
	return processUsedTokens
}

// Contains reports whether token has been redeemed.
func (s *UsedTokenSet) Contains(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[token]
	return ok
}

// Redeem inserts token and reports whether this call inserted it. Exactly one
// of any number of concurrent calls with the same token returns true.
func (s *UsedTokenSet) Redeem(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[token]; ok {
		return false
	}
	s.seen[token] = struct{}{}
	return true
}

// Len returns the number of redeemed tokens.
func (s *UsedTokenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
