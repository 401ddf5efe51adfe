package partyhub

import (
	"fmt"
	"image"
	"sync"
)

// GameHandler is the capability set one game type implements. Handlers
// operate only on the Session they are handed and must be synchronous:
// the manager's per-session lock is the single-writer guarantee, and a
// handler that blocks or spawns work against the session voids it.
//
// Handlers never touch the session store and never apply score deltas
// themselves; they report deltas from RoundResults and the manager
// applies them.
type GameHandler interface {
	// MinPlayers and MaxPlayers bound the roster size.
	MinPlayers() int
	MaxPlayers() int
	// DefaultRounds is used when settings carry no "rounds" override.
	DefaultRounds() int

	// CreateInitialState builds the opaque game-data bag from the
	// caller-supplied settings.
	CreateInitialState(settings map[string]any) any

	// OnRoundStart initializes round-specific state. The manager calls
	// it exactly once per round, immediately after incrementing Round.
	OnRoundStart(s *Session)

	// HandleAction applies one player-submitted action. Illegal or
	// out-of-turn actions must leave the session unchanged rather than
	// fail; duplicate and late client messages are a fact of life.
	HandleAction(s *Session, playerID, action string, payload map[string]any)

	// IsRoundOver reports whether the current round has completed.
	IsRoundOver(s *Session) bool

	// RoundResults reports the completed round's score deltas and a
	// display payload. Deltas are not yet applied.
	RoundResults(s *Session) *RoundResults

	// IsGameOver reports whether the session is done. Typically
	// Round >= TotalRounds, but a handler may end earlier (e.g. on an
	// explicit host action).
	IsGameOver(s *Session) bool
}

// StateCodec is an optional handler capability. Handlers that implement
// it get their game-data bag persisted to the snapshot store; sessions
// of handlers without it are held in memory only.
type StateCodec interface {
	EncodeState(data any) ([]byte, error)
	DecodeState(b []byte) (any, error)
}

// BoardRenderer is an optional handler capability for game types that
// can draw their current state as an image.
type BoardRenderer interface {
	RenderBoard(s *Session) (image.Image, error)
}

// Registry maps game-type identifiers to their handlers. It is
// populated once at process startup.
type Registry struct {
	mtx      sync.RWMutex
	handlers map[string]GameHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]GameHandler)}
}

// Register adds a handler under the given name. Panics on a duplicate
// name: double registration is a wiring bug, not a runtime condition.
func (r *Registry) Register(name string, h GameHandler) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("game type %q already registered", name))
	}
	r.handlers[name] = h
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (GameHandler, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Types lists the registered game-type names.
func (r *Registry) Types() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
