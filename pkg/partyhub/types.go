package partyhub

import "time"

// Status is the externally visible lifecycle state of a session.
// It only ever moves forward: lobby -> playing -> finished.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// PlayerInfo is the caller-supplied identity of a joining player.
// ID may be empty for unauthenticated guests; the manager assigns one.
type PlayerInfo struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Player is one roster entry. Players are appended on join and never
// removed; disconnection only flips IsConnected.
type Player struct {
	ID          string `json:"id" msgpack:"id"`
	Name        string `json:"name" msgpack:"name"`
	Avatar      string `json:"avatar,omitempty" msgpack:"avatar"`
	Score       int    `json:"score" msgpack:"score"`
	IsHost      bool   `json:"isHost" msgpack:"isHost"`
	IsConnected bool   `json:"isConnected" msgpack:"isConnected"`
}

// Session is the full mutable record of one game instance, keyed by its
// join code. GameData is owned by the game handler; the manager only
// passes it through and applies score deltas to the roster.
type Session struct {
	Code           string         `json:"code"`
	GameType       string         `json:"gameType"`
	Status         Status         `json:"status"`
	Players        []*Player      `json:"players"`
	HostID         string         `json:"hostId"`
	Round          int            `json:"round"`
	TotalRounds    int            `json:"totalRounds"`
	Settings       map[string]any `json:"settings,omitempty"`
	GameData       any            `json:"gameData,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	RoundStartedAt time.Time      `json:"roundStartedAt,omitempty"`
	// TimerDuration is advisory; deadlines are enforced (if at all) by
	// the transport layer, never by the manager.
	TimerDuration time.Duration `json:"timerDuration,omitempty"`
}

// Player returns the roster entry with the given ID, or nil.
func (s *Session) Player(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Host returns the roster entry created at session creation.
func (s *Session) Host() *Player {
	return s.Player(s.HostID)
}

// AllDisconnected reports whether no roster entry is connected.
func (s *Session) AllDisconnected() bool {
	for _, p := range s.Players {
		if p.IsConnected {
			return false
		}
	}
	return true
}

// lastProgress is the reference point for staleness checks.
func (s *Session) lastProgress() time.Time {
	if s.RoundStartedAt.IsZero() {
		return s.CreatedAt
	}
	return s.RoundStartedAt
}

// RoundResults is what a handler reports for one completed round.
// Scores maps player ID to a delta; the manager applies the deltas to
// the roster's cumulative scores, handlers never do.
type RoundResults struct {
	Scores  map[string]int `json:"scores"`
	Summary any            `json:"summary,omitempty"`
}

// ActionResult is returned by Manager.HandleAction. When RoundEnded is
// true, Results holds the just-completed round's outcome so the caller
// can show an interstitial in the same broadcast that starts the next
// round (or ends the game).
type ActionResult struct {
	Session    *Session      `json:"session"`
	RoundEnded bool          `json:"roundEnded"`
	GameEnded  bool          `json:"gameEnded"`
	Results    *RoundResults `json:"roundResults,omitempty"`
}
