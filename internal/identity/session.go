package identity

import "sync"

// Identity is the caller on whose behalf filters are loaded.
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

func (i Identity) IsZero() bool {
	return i.UserID == 0 && i.Role == ""
}

// Notifier is what the filter cache needs from the session system.
type Notifier interface {
	Subscribe(fn func(prev, next Identity)) (unsubscribe func())
}

// Session holds the active identity and tells subscribers when the user or
// role changes.
type Session struct {
	mu      sync.Mutex
	current Identity
	nextID  int
	subs    map[int]func(prev, next Identity)
}

func NewSession(initial Identity) *Session {
	return &Session{current: initial, subs: make(map[int]func(prev, next Identity))}
}

func (s *Session) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Switch replaces the active identity. Subscribers run synchronously, before
// Switch returns, and only when the user or role actually changed.
func (s *Session) Switch(next Identity) bool {
	s.mu.Lock()
	prev := s.current
	s.current = next
	changed := prev.UserID != next.UserID || prev.Role != next.Role
	var fns []func(prev, next Identity)
	if changed {
		fns = make([]func(prev, next Identity), 0, len(s.subs))
		for _, fn := range s.subs {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(prev, next)
	}
	return changed
}

func (s *Session) Subscribe(fn func(prev, next Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
