package executor

import (
	"errors"
	"sync"
)

// ErrInFlight is returned when the same action is already being submitted.
var ErrInFlight = errors.New("action already in flight")

// Guard allows one submission per action key at a time.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// Acquire marks key as running. The returned release must be called when the
// action completes; calling it more than once is harmless.
func (g *Guard) Acquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inFlight[key]; ok {
		return nil, ErrInFlight
	}
	g.inFlight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		})
	}, nil
}

// InFlight reports whether key is currently held.
func (g *Guard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[key]
	return ok
}
