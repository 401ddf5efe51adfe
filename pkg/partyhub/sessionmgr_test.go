package partyhub

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// stubGame is a minimal handler for driving the manager: the "win"
// action ends the round and awards its submitter points.
type stubGame struct {
	min, max, rounds int
}

type stubState struct {
	RoundsStarted int
	RoundOver     bool
	Deltas        map[string]int
}

func (g stubGame) MinPlayers() int    { return g.min }
func (g stubGame) MaxPlayers() int    { return g.max }
func (g stubGame) DefaultRounds() int { return g.rounds }

func (g stubGame) CreateInitialState(settings map[string]any) any {
	return &stubState{}
}

func (g stubGame) OnRoundStart(s *Session) {
	state := s.GameData.(*stubState)
	state.RoundsStarted++
	state.RoundOver = false
	state.Deltas = make(map[string]int)
}

func (g stubGame) HandleAction(s *Session, playerID, action string, payload map[string]any) {
	state := s.GameData.(*stubState)
	if action == "win" && !state.RoundOver {
		points, _ := payload["points"].(int)
		state.Deltas[playerID] = points
		state.RoundOver = true
	}
}

func (g stubGame) IsRoundOver(s *Session) bool {
	return s.GameData.(*stubState).RoundOver
}

func (g stubGame) RoundResults(s *Session) *RoundResults {
	return &RoundResults{Scores: s.GameData.(*stubState).Deltas}
}

func (g stubGame) IsGameOver(s *Session) bool {
	return s.Round >= s.TotalRounds
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	registry := NewRegistry()
	registry.Register("stub", stubGame{min: 2, max: 4, rounds: 2})
	cfg := DefaultConfig()
	cfg.DisconnectGrace = 25 * time.Millisecond
	return NewManager(registry, cfg)
}

func TestCreateUnknownGameType(t *testing.T) {
	mgr := newTestManager(t)
	if _, err := mgr.Create("nope", PlayerInfo{Name: "Ann"}, nil); !errors.Is(err, ErrUnknownGameType) {
		t.Fatalf("expected ErrUnknownGameType, got %v", err)
	}
}

func TestCreateBuildsLobby(t *testing.T) {
	mgr := newTestManager(t)
	sess, err := mgr.Create("stub", PlayerInfo{Name: "Ann"}, map[string]any{"rounds": 7})
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Code) != 6 {
		t.Errorf("expected 6-char code, got %q", sess.Code)
	}
	for _, c := range sess.Code {
		if !strings.ContainsRune(codeAlphabet, c) {
			t.Errorf("code %q contains %q outside the alphabet", sess.Code, c)
		}
	}
	if sess.Status != StatusLobby || sess.Round != 0 {
		t.Errorf("expected fresh lobby, got status=%s round=%d", sess.Status, sess.Round)
	}
	if sess.TotalRounds != 7 {
		t.Errorf("settings rounds override ignored, got %d", sess.TotalRounds)
	}
	host := sess.Host()
	if host == nil || !host.IsHost || !host.IsConnected || host.Name != "Ann" {
		t.Errorf("bad host entry: %+v", host)
	}
	if host.ID == "" {
		t.Error("host without identity should get a guest ID")
	}
	if got, ok := mgr.Get(sess.Code); !ok || got != sess {
		t.Error("created session not retrievable by code")
	}
}

func TestCreateDefaultRounds(t *testing.T) {
	mgr := newTestManager(t)
	sess, err := mgr.Create("stub", PlayerInfo{Name: "Ann"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sess.TotalRounds != 2 {
		t.Errorf("expected handler default of 2 rounds, got %d", sess.TotalRounds)
	}
}

func TestJoinErrors(t *testing.T) {
	mgr := newTestManager(t)
	if _, err := mgr.Join("XXXXXX", PlayerInfo{Name: "Bob"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)
	for _, name := range []string{"Bob", "Cid", "Dee"} {
		if _, err := mgr.Join(sess.Code, PlayerInfo{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := mgr.Join(sess.Code, PlayerInfo{Name: "Eve"}); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}

	if _, err := mgr.Start(sess.Code, "host"); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Join(sess.Code, PlayerInfo{Name: "Eve"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestJoinReconnectDoesNotDuplicate(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)
	if _, err := mgr.Join(sess.Code, PlayerInfo{ID: "p2", Name: "Bob"}); err != nil {
		t.Fatal(err)
	}
	mgr.Disconnect(sess.Code, "p2")
	if sess.Player("p2").IsConnected {
		t.Fatal("disconnect did not flip the flag")
	}

	got, err := mgr.Join(sess.Code, PlayerInfo{ID: "p2", Name: "Bobby"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Players) != 2 {
		t.Fatalf("reconnect duplicated the roster entry: %d players", len(got.Players))
	}
	p := got.Player("p2")
	if !p.IsConnected || p.Name != "Bobby" {
		t.Errorf("reconnect should reconnect and rename, got %+v", p)
	}
}

func TestStartChecks(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)

	if _, err := mgr.Start(sess.Code, "host"); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Errorf("expected ErrNotEnoughPlayers, got %v", err)
	}
	mgr.Join(sess.Code, PlayerInfo{ID: "p2", Name: "Bob"})
	if _, err := mgr.Start(sess.Code, "p2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-host, got %v", err)
	}

	got, err := mgr.Start(sess.Code, "host")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPlaying || got.Round != 1 {
		t.Errorf("expected playing round 1, got %s round %d", got.Status, got.Round)
	}
	if got.RoundStartedAt.IsZero() {
		t.Error("round start timestamp not stamped")
	}
	if got.GameData.(*stubState).RoundsStarted != 1 {
		t.Error("OnRoundStart not invoked exactly once")
	}
	if _, err := mgr.Start(sess.Code, "host"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted on double start, got %v", err)
	}
}

func TestHandleActionFullGame(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)
	mgr.Join(sess.Code, PlayerInfo{ID: "p2", Name: "Bob"})

	if _, err := mgr.HandleAction(sess.Code, "host", "win", nil); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress before start, got %v", err)
	}
	mgr.Start(sess.Code, "host")

	// Unknown players are silently ignored.
	res, err := mgr.HandleAction(sess.Code, "ghost", "win", map[string]any{"points": 5})
	if err != nil {
		t.Fatal(err)
	}
	if res.RoundEnded || res.Session.Round != 1 {
		t.Error("unknown player's action should be a no-op")
	}

	// Round 1: host wins 3 points, game advances to round 2.
	res, err = mgr.HandleAction(sess.Code, "host", "win", map[string]any{"points": 3})
	if err != nil {
		t.Fatal(err)
	}
	if !res.RoundEnded || res.GameEnded {
		t.Fatalf("expected round end without game end, got %+v", res)
	}
	if res.Session.Round != 2 {
		t.Errorf("round should advance to 2, got %d", res.Session.Round)
	}
	if res.Results == nil || res.Results.Scores["host"] != 3 {
		t.Fatalf("missing round results: %+v", res.Results)
	}
	if sess.Player("host").Score != 3 {
		t.Errorf("score delta not applied, host score = %d", sess.Player("host").Score)
	}
	if sess.GameData.(*stubState).RoundsStarted != 2 {
		t.Error("next round not initialized")
	}

	// Round 2 is the last: the game finishes.
	res, err = mgr.HandleAction(sess.Code, "p2", "win", map[string]any{"points": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !res.RoundEnded || !res.GameEnded {
		t.Fatalf("expected game end, got %+v", res)
	}
	if res.Session.Status != StatusFinished {
		t.Errorf("expected finished, got %s", res.Session.Status)
	}
	if sess.Player("p2").Score != 2 || sess.Player("host").Score != 3 {
		t.Error("cumulative scores wrong after final round")
	}

	// Terminal: further actions fail and nothing changes.
	round, score := sess.Round, sess.Player("host").Score
	if _, err := mgr.HandleAction(sess.Code, "host", "win", map[string]any{"points": 9}); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("expected ErrNotInProgress after finish, got %v", err)
	}
	if sess.Round != round || sess.Player("host").Score != score || sess.Status != StatusFinished {
		t.Error("finished session was mutated")
	}
}

func TestHandleActionNotFound(t *testing.T) {
	mgr := newTestManager(t)
	if _, err := mgr.HandleAction("XXXXXX", "p", "win", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{Name: "Ann"}, nil)
	mgr.Remove(sess.Code)
	if _, ok := mgr.Get(sess.Code); ok {
		t.Fatal("session still present after remove")
	}
	mgr.Remove(sess.Code)   // second remove
	mgr.Remove("NOSUCH")    // never existed
}

func TestDisconnectSchedulesRemoval(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)

	if _, ok := mgr.Disconnect(sess.Code, "host"); !ok {
		t.Fatal("disconnect reported missing session")
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := mgr.Get(sess.Code); ok {
		t.Fatal("abandoned session not removed after the grace window")
	}
}

func TestReconnectCancelsRemoval(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)

	mgr.Disconnect(sess.Code, "host")
	if _, err := mgr.Join(sess.Code, PlayerInfo{ID: "host", Name: "Ann"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := mgr.Get(sess.Code); !ok {
		t.Fatal("session removed despite reconnect")
	}
}

func TestDisconnectMissing(t *testing.T) {
	mgr := newTestManager(t)
	if _, ok := mgr.Disconnect("XXXXXX", "p"); ok {
		t.Error("disconnect on missing code should report absent")
	}
}

func TestJoinCodesUnique(t *testing.T) {
	mgr := newTestManager(t)
	codes := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, err := mgr.Create("stub", PlayerInfo{Name: "Ann"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if codes[sess.Code] {
			t.Fatalf("duplicate live join code %s", sess.Code)
		}
		codes[sess.Code] = true
	}
}

func TestEncodeSession(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)

	blob, ok := mgr.EncodeSession(sess.Code)
	if !ok {
		t.Fatal("live session not encodable")
	}
	var got Session
	if err := json.Unmarshal(blob, &got); err != nil {
		t.Fatal(err)
	}
	if got.Code != sess.Code || got.Status != StatusLobby {
		t.Errorf("unexpected encoded session: %+v", got)
	}
	if _, ok := mgr.EncodeSession("NOSUCH"); ok {
		t.Error("missing code should not encode")
	}
}

// Readers serialize the session while a player hammers actions at it;
// run with -race to catch unsynchronized access to the live record.
func TestEncodeSessionDuringActions(t *testing.T) {
	registry := NewRegistry()
	registry.Register("stub", stubGame{min: 2, max: 4, rounds: 1 << 30})
	mgr := NewManager(registry, DefaultConfig())

	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)
	mgr.Join(sess.Code, PlayerInfo{ID: "p2", Name: "Bob"})
	if _, err := mgr.Start(sess.Code, "host"); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			mgr.HandleAction(sess.Code, "host", "win", map[string]any{"points": 1})
		}
	}()
	for i := 0; i < 500; i++ {
		if _, ok := mgr.EncodeSession(sess.Code); !ok {
			t.Fatal("session vanished mid-game")
		}
		mgr.RenderBoard(sess.Code)
	}
	<-done
}

// Sessions must be fully formed before they become visible: any code
// reachable through the store encodes to a session carrying that code.
func TestCreatePublishesCompleteSessions(t *testing.T) {
	mgr := newTestManager(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			mgr.Create("stub", PlayerInfo{Name: "Ann"}, nil)
		}
	}()
	for i := 0; i < 100; i++ {
		mgr.sessions.Range(func(key, _ any) bool {
			code := key.(string)
			blob, ok := mgr.EncodeSession(code)
			if !ok {
				return true
			}
			var got Session
			if err := json.Unmarshal(blob, &got); err != nil {
				t.Error(err)
				return false
			}
			if got.Code != code {
				t.Errorf("session stored under %s carries code %q", code, got.Code)
				return false
			}
			return true
		})
	}
	<-done
}

func TestSingleHostForLifetime(t *testing.T) {
	mgr := newTestManager(t)
	sess, _ := mgr.Create("stub", PlayerInfo{ID: "host", Name: "Ann"}, nil)
	mgr.Join(sess.Code, PlayerInfo{ID: "p2", Name: "Bob"})
	mgr.Start(sess.Code, "host")
	mgr.HandleAction(sess.Code, "p2", "win", map[string]any{"points": 1})

	hosts := 0
	for _, p := range sess.Players {
		if p.IsHost {
			hosts++
			if p.ID != "host" {
				t.Errorf("host flag moved to %s", p.ID)
			}
		}
	}
	if hosts != 1 {
		t.Errorf("expected exactly one host, got %d", hosts)
	}
}
