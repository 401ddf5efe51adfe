package partyhub

import (
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// errNoCodec marks handlers that opted out of persistence.
var errNoCodec = errors.New("handler does not implement StateCodec")

// snapshot is the persisted form of a session. The game-data bag is a
// byte blob produced by the handler's StateCodec, since only the
// handler knows the bag's concrete type.
type snapshot struct {
	Code           string         `msgpack:"code"`
	GameType       string         `msgpack:"gameType"`
	Status         Status         `msgpack:"status"`
	Players        []*Player      `msgpack:"players"`
	HostID         string         `msgpack:"hostId"`
	Round          int            `msgpack:"round"`
	TotalRounds    int            `msgpack:"totalRounds"`
	Settings       map[string]any `msgpack:"settings"`
	GameData       []byte         `msgpack:"gameData"`
	CreatedAt      time.Time      `msgpack:"createdAt"`
	RoundStartedAt time.Time      `msgpack:"roundStartedAt"`
	TimerDuration  time.Duration  `msgpack:"timerDuration"`
}

func encodeSnapshot(sess *Session, h GameHandler) ([]byte, error) {
	codec, ok := h.(StateCodec)
	if !ok {
		return nil, errNoCodec
	}
	data, err := codec.EncodeState(sess.GameData)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&snapshot{
		Code:           sess.Code,
		GameType:       sess.GameType,
		Status:         sess.Status,
		Players:        sess.Players,
		HostID:         sess.HostID,
		Round:          sess.Round,
		TotalRounds:    sess.TotalRounds,
		Settings:       sess.Settings,
		GameData:       data,
		CreatedAt:      sess.CreatedAt,
		RoundStartedAt: sess.RoundStartedAt,
		TimerDuration:  sess.TimerDuration,
	})
}

func decodeSnapshot(blob []byte, registry *Registry) (*Session, error) {
	var snap snapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return nil, err
	}
	h, ok := registry.Get(snap.GameType)
	if !ok {
		return nil, ErrInvalidGameType
	}
	codec, ok := h.(StateCodec)
	if !ok {
		return nil, errNoCodec
	}
	data, err := codec.DecodeState(snap.GameData)
	if err != nil {
		return nil, err
	}
	return &Session{
		Code:           snap.Code,
		GameType:       snap.GameType,
		Status:         snap.Status,
		Players:        snap.Players,
		HostID:         snap.HostID,
		Round:          snap.Round,
		TotalRounds:    snap.TotalRounds,
		Settings:       snap.Settings,
		GameData:       data,
		CreatedAt:      snap.CreatedAt,
		RoundStartedAt: snap.RoundStartedAt,
		TimerDuration:  snap.TimerDuration,
	}, nil
}
