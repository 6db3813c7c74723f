package discount

import "sync"

// Scope memoises applicable-product sets for the lifetime of one request so
// that validation and calculation share a single expansion. Create one per
// request with NewScope; a nil Scope disables memoisation.
type Scope struct {
	mu         sync.Mutex
	applicable map[int64]map[int64]struct{}
}

// NewScope creates an empty request scope
func NewScope() *Scope {
	return &Scope{applicable: make(map[int64]map[int64]struct{})}
}

func (s *Scope) lookup(discountID int64) (map[int64]struct{}, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.applicable[discountID]
	return set, ok
}

func (s *Scope) store(discountID int64, set map[int64]struct{}) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applicable[discountID] = set
}
