package onboarding

import "sync"

// Guard allows one in-flight submission per user across requests, the
// server-side counterpart of the form's isSubmitting flag.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inFlight: map[string]struct{}{}}
}

// Acquire returns a release func, or false when key already holds the guard.
func (g *Guard) Acquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return nil, false
	}
	g.inFlight[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		})
	}, true
}
