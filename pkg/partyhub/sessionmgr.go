package partyhub

import (
	"encoding/json"
	"image"
	"log"
	"sync"
	"time"
)

// liveSession pairs a session with its lock and its abandonment timer.
// Every manager operation against the session runs under mtx, which is
// what makes each call a critical section even on a multi-threaded
// runtime; handlers are called with the lock held and must not block.
type liveSession struct {
	mtx  sync.Mutex
	sess *Session
	slc  *sessionLifecycle
}

// Manager owns all live sessions and drives their lifecycle. It is the
// only component that mutates session state outside handler calls, and
// the only one that increments Round or applies score deltas.
type Manager struct {
	registry *Registry
	sessions sync.Map // join code -> *liveSession
	db       *DB
	archive  *Archive

	disconnectGrace time.Duration
	staleTimeout    time.Duration
	finishedGrace   time.Duration
	gcInterval      time.Duration
}

// NewManager wires a manager from the registry and config. Redis and
// the archive are both optional: a failed connection is logged and the
// manager runs memory-only.
func NewManager(registry *Registry, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	mgr := &Manager{
		registry:        registry,
		disconnectGrace: cfg.DisconnectGrace,
		staleTimeout:    cfg.StaleTimeout,
		finishedGrace:   cfg.FinishedGrace,
		gcInterval:      cfg.GCInterval,
	}
	if len(cfg.RedisURL) > 0 {
		db, err := NewDB(cfg.RedisURL)
		if err != nil {
			log.Println("Redis error:", err)
		} else {
			mgr.db = db
			mgr.loadSessions()
		}
	}
	if len(cfg.ArchivePath) > 0 {
		archive, err := OpenArchive(cfg.ArchivePath)
		if err != nil {
			log.Println("Archive error:", err)
		} else {
			mgr.archive = archive
		}
	}
	return mgr
}

// Create builds a new session in the lobby state with the caller as
// host and stores it under a freshly generated join code.
func (mgr *Manager) Create(gameType string, host PlayerInfo, settings map[string]any) (*Session, error) {
	h, ok := mgr.registry.Get(gameType)
	if !ok {
		return nil, ErrUnknownGameType
	}

	sess := &Session{
		GameType:      gameType,
		Status:        StatusLobby,
		Players:       []*Player{newPlayer(host, true)},
		TotalRounds:   settingsInt(settings, "rounds", h.DefaultRounds()),
		Settings:      settings,
		GameData:      h.CreateInitialState(settings),
		CreatedAt:     time.Now(),
		TimerDuration: time.Duration(settingsInt(settings, "roundTimerSeconds", 0)) * time.Second,
	}
	sess.HostID = sess.Players[0].ID

	// The lock is held across publication, and the code is assigned
	// before it, so nobody can observe a session without its join code
	// or its lifecycle timer.
	ls := &liveSession{sess: sess}
	ls.mtx.Lock()
	for {
		sess.Code = GenerateCode()
		if _, loaded := mgr.sessions.LoadOrStore(sess.Code, ls); !loaded {
			ls.slc = newSessionLifecycle(mgr, sess.Code, mgr.disconnectGrace)
			break
		}
	}
	mgr.persist(ls)
	ls.mtx.Unlock()
	log.Printf("[new session: %s] %s", sess.Code, gameType)
	return sess, nil
}

// Join adds a player to a lobby, or reconnects an identity that already
// has a roster entry (updating its display name instead of duplicating).
func (mgr *Manager) Join(code string, p PlayerInfo) (*Session, error) {
	ls, ok := mgr.load(code)
	if !ok {
		return nil, ErrNotFound
	}
	ls.mtx.Lock()
	defer ls.mtx.Unlock()

	sess := ls.sess
	if sess.Status != StatusLobby {
		return nil, ErrAlreadyStarted
	}
	if existing := sess.Player(p.ID); p.ID != "" && existing != nil {
		existing.IsConnected = true
		if p.Name != "" {
			existing.Name = p.Name
		}
		ls.slc.stopTimer()
		mgr.persist(ls)
		return sess, nil
	}
	h, ok := mgr.registry.Get(sess.GameType)
	if !ok {
		return nil, ErrInvalidGameType
	}
	if len(sess.Players) >= h.MaxPlayers() {
		return nil, ErrFull
	}
	sess.Players = append(sess.Players, newPlayer(p, false))
	ls.slc.stopTimer()
	mgr.persist(ls)
	return sess, nil
}

// Start moves a lobby into play: round 1 begins and the round-start
// timestamp is stamped for the GC and for advisory client timers.
func (mgr *Manager) Start(code, requesterID string) (*Session, error) {
	ls, ok := mgr.load(code)
	if !ok {
		return nil, ErrNotFound
	}
	ls.mtx.Lock()
	defer ls.mtx.Unlock()

	sess := ls.sess
	if requesterID != sess.HostID {
		return nil, ErrForbidden
	}
	if sess.Status != StatusLobby {
		return nil, ErrAlreadyStarted
	}
	h, ok := mgr.registry.Get(sess.GameType)
	if !ok {
		return nil, ErrInvalidGameType
	}
	if len(sess.Players) < h.MinPlayers() {
		return nil, ErrNotEnoughPlayers
	}

	sess.Status = StatusPlaying
	sess.Round = 1
	h.OnRoundStart(sess)
	sess.RoundStartedAt = time.Now()
	log.Printf("[session started: %s] %d players", code, len(sess.Players))
	mgr.persist(ls)
	return sess, nil
}

// HandleAction delegates one player action to the session's handler,
// then drives round and game completion. Score deltas reported by the
// handler are applied here and nowhere else.
func (mgr *Manager) HandleAction(code, playerID, action string, payload map[string]any) (*ActionResult, error) {
	ls, ok := mgr.load(code)
	if !ok {
		return nil, ErrNotFound
	}
	ls.mtx.Lock()
	defer ls.mtx.Unlock()

	sess := ls.sess
	if sess.Status != StatusPlaying {
		return nil, ErrNotInProgress
	}
	h, ok := mgr.registry.Get(sess.GameType)
	if !ok {
		return nil, ErrInvalidGameType
	}
	res := &ActionResult{Session: sess}
	if sess.Player(playerID) == nil {
		// Silently ignored so late or duplicate client messages can't
		// tear down a session; logged because they are otherwise
		// undiagnosable.
		log.Printf("[%s] action %q from unknown player %s ignored", code, action, playerID)
		return res, nil
	}

	h.HandleAction(sess, playerID, action, payload)
	if !h.IsRoundOver(sess) {
		mgr.persist(ls)
		return res, nil
	}

	res.RoundEnded = true
	res.Results = h.RoundResults(sess)
	if res.Results != nil {
		for id, delta := range res.Results.Scores {
			if p := sess.Player(id); p != nil {
				p.Score += delta
			}
		}
	}

	if h.IsGameOver(sess) {
		sess.Status = StatusFinished
		res.GameEnded = true
		log.Printf("[session finished: %s] %d rounds", code, sess.Round)
		if mgr.archive != nil {
			if err := mgr.archive.RecordFinished(sess); err != nil {
				log.Println("Archive error:", err)
			}
		}
	} else {
		sess.Round++
		h.OnRoundStart(sess)
		sess.RoundStartedAt = time.Now()
	}
	mgr.persist(ls)
	return res, nil
}

// Get returns the live session for code, if any. It never fails. The
// returned pointer is the live record: fine for the run-to-completion
// caller the engine assumes, but anything reading it concurrently with
// other operations must go through EncodeSession instead.
func (mgr *Manager) Get(code string) (*Session, bool) {
	ls, ok := mgr.load(code)
	if !ok {
		return nil, false
	}
	return ls.sess, true
}

// EncodeSession serializes the session under its lock, giving
// concurrent readers (the gateway's broadcasts, mainly) a consistent
// view that stays valid while other calls mutate the session.
func (mgr *Manager) EncodeSession(code string) (json.RawMessage, bool) {
	ls, ok := mgr.load(code)
	if !ok {
		return nil, false
	}
	ls.mtx.Lock()
	defer ls.mtx.Unlock()
	blob, err := json.Marshal(ls.sess)
	if err != nil {
		log.Printf("[%s] encode error: %v", code, err)
		return nil, false
	}
	return blob, true
}

// Remove deletes the session unconditionally. Safe to call for codes
// that were already removed, including from timers that lost the race.
func (mgr *Manager) Remove(code string) {
	v, loaded := mgr.sessions.LoadAndDelete(code)
	if !loaded {
		return
	}
	v.(*liveSession).slc.stopTimer()
	if mgr.db != nil {
		go mgr.db.DeleteSession(code)
	}
	log.Printf("[session removed: %s]", code)
}

// Disconnect flags the player as gone. When the whole roster is
// disconnected the abandonment timer is armed; if nobody is back by the
// time it fires, the session is removed.
func (mgr *Manager) Disconnect(code, playerID string) (*Session, bool) {
	ls, ok := mgr.load(code)
	if !ok {
		return nil, false
	}
	ls.mtx.Lock()
	defer ls.mtx.Unlock()

	sess := ls.sess
	if p := sess.Player(playerID); p != nil {
		p.IsConnected = false
	}
	if sess.AllDisconnected() {
		ls.slc.startTimer()
	}
	mgr.persist(ls)
	return sess, true
}

// expireIfAbandoned is the deferred all-disconnected check. The session
// may have been removed, or a player may have come back, by the time
// the timer fires; both are fine.
func (mgr *Manager) expireIfAbandoned(code string) {
	ls, ok := mgr.load(code)
	if !ok {
		return
	}
	ls.mtx.Lock()
	abandoned := ls.sess.AllDisconnected()
	ls.mtx.Unlock()
	if abandoned {
		log.Printf("[session abandoned: %s]", code)
		mgr.Remove(code)
	}
}

// RenderBoard draws the session's current state, for game types whose
// handler implements BoardRenderer. Runs under the session lock so the
// handler sees a consistent state.
func (mgr *Manager) RenderBoard(code string) (image.Image, error) {
	ls, ok := mgr.load(code)
	if !ok {
		return nil, ErrNotFound
	}
	ls.mtx.Lock()
	defer ls.mtx.Unlock()
	h, ok := mgr.registry.Get(ls.sess.GameType)
	if !ok {
		return nil, ErrInvalidGameType
	}
	br, ok := h.(BoardRenderer)
	if !ok {
		return nil, ErrNotFound
	}
	return br.RenderBoard(ls.sess)
}

func (mgr *Manager) load(code string) (*liveSession, bool) {
	v, ok := mgr.sessions.Load(code)
	if !ok {
		return nil, false
	}
	return v.(*liveSession), true
}

// persist snapshots the session to Redis, fire and forget. Encoding
// happens under the caller's lock; only the network write is deferred.
func (mgr *Manager) persist(ls *liveSession) {
	if mgr.db == nil {
		return
	}
	h, ok := mgr.registry.Get(ls.sess.GameType)
	if !ok {
		return
	}
	blob, err := encodeSnapshot(ls.sess, h)
	if err != nil {
		return // handler has no StateCodec; memory-only session
	}
	code := ls.sess.Code
	go mgr.db.SaveSession(code, blob, mgr.staleTimeout)
}

func (mgr *Manager) loadSessions() {
	for code, blob := range mgr.db.LoadSessions() {
		if err := mgr.restoreSession(code, blob); err != nil {
			log.Printf("[skipping stored session %s] %v", code, err)
		}
	}
}

// restoreSession rehydrates one stored snapshot. No connection survives
// a restart, so every player comes back disconnected and the
// abandonment timer is armed: a restore nobody returns to is reaped on
// the short path instead of lingering until the sweep.
func (mgr *Manager) restoreSession(code string, blob []byte) error {
	sess, err := decodeSnapshot(blob, mgr.registry)
	if err != nil {
		return err
	}
	sess.Code = code
	for _, p := range sess.Players {
		p.IsConnected = false
	}
	ls := &liveSession{sess: sess}
	ls.mtx.Lock()
	if _, loaded := mgr.sessions.LoadOrStore(code, ls); loaded {
		// Already live; keep the in-memory session.
		ls.mtx.Unlock()
		return nil
	}
	ls.slc = newSessionLifecycle(mgr, code, mgr.disconnectGrace)
	ls.slc.startTimer()
	ls.mtx.Unlock()
	log.Printf("[restored session: %s] %s", code, sess.GameType)
	return nil
}

func newPlayer(info PlayerInfo, isHost bool) *Player {
	id := info.ID
	if id == "" {
		id = NewGuestID()
	}
	return &Player{
		ID:          id,
		Name:        info.Name,
		Avatar:      info.Avatar,
		IsHost:      isHost,
		IsConnected: true,
	}
}

// settingsInt reads an integer setting, tolerating the float64 that
// JSON decoding produces.
func settingsInt(settings map[string]any, key string, fallback int) int {
	switch v := settings[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
