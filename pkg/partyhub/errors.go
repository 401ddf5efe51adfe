package partyhub

import "errors"

// Errors raised by Manager operations. The transport layer is expected
// to match with errors.Is and translate to client-facing responses.
var (
	// ErrUnknownGameType: create requested an unregistered game type.
	ErrUnknownGameType = errors.New("unknown game type")
	// ErrNotFound: no live session for the given join code.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyStarted: join attempted after the session left the lobby.
	ErrAlreadyStarted = errors.New("game already started")
	// ErrFull: join attempted with the roster at the handler's maximum.
	ErrFull = errors.New("game is full")
	// ErrForbidden: start requested by a non-host.
	ErrForbidden = errors.New("only the host can do that")
	// ErrNotEnoughPlayers: start requested below the handler's minimum.
	ErrNotEnoughPlayers = errors.New("not enough players")
	// ErrNotInProgress: action submitted while the session is not playing.
	ErrNotInProgress = errors.New("game is not in progress")
	// ErrInvalidGameType: a live session references a game type that is
	// no longer registered. Defensive; should not occur in normal
	// operation since registration happens once at startup.
	ErrInvalidGameType = errors.New("invalid game type")
)
