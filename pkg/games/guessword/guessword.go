// Package guessword implements a secret-word party game. Each round
// the engine picks a secret word; every player gets one guess. The
// first correct guess wins the round, a wrong guess locks that player
// out until the next round.
package guessword

import (
	"math/rand"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"partyhub/pkg/partyhub"
)

var defaultWords = []string{
	"galaxy", "lantern", "whisper", "compass", "volcano",
	"harbor", "meadow", "puzzle", "thunder", "marble",
	"anchor", "breeze", "candle", "dragon", "ember",
	"falcon", "glacier", "horizon", "island", "jungle",
}

// State is the opaque game-data bag for one session.
type State struct {
	Words    []string          `msgpack:"words"`
	Secret   string            `msgpack:"secret"`
	Hint     string            `msgpack:"hint"`
	Attempts map[string]string `msgpack:"attempts"`
	Winner   string            `msgpack:"winner"`
	ForceEnd bool              `msgpack:"forceEnd"`
}

// Summary is the display payload for one completed round.
type Summary struct {
	Secret string `json:"secret"`
	Winner string `json:"winner,omitempty"`
}

type Handler struct{}

var _ partyhub.GameHandler = Handler{}
var _ partyhub.StateCodec = Handler{}

func (Handler) MinPlayers() int    { return 2 }
func (Handler) MaxPlayers() int    { return 10 }
func (Handler) DefaultRounds() int { return 5 }

func (Handler) CreateInitialState(settings map[string]any) any {
	state := &State{Words: append([]string(nil), defaultWords...)}
	if custom, ok := settings["words"].([]any); ok {
		var words []string
		for _, w := range custom {
			if s, ok := w.(string); ok && len(s) > 0 {
				words = append(words, strings.ToLower(s))
			}
		}
		if len(words) > 0 {
			state.Words = words
		}
	}
	return state
}

func (Handler) OnRoundStart(s *partyhub.Session) {
	state := s.GameData.(*State)
	if len(state.Words) == 0 {
		state.Words = append([]string(nil), defaultWords...)
	}
	i := rand.Intn(len(state.Words))
	state.Secret = state.Words[i]
	state.Words = append(state.Words[:i], state.Words[i+1:]...)
	state.Hint = maskWord(state.Secret)
	state.Attempts = make(map[string]string)
	state.Winner = ""
}

func (Handler) HandleAction(s *partyhub.Session, playerID, action string, payload map[string]any) {
	state := s.GameData.(*State)
	switch action {
	case "guess":
		if state.Winner != "" || state.ForceEnd {
			return
		}
		if _, spent := state.Attempts[playerID]; spent {
			return
		}
		word, _ := payload["word"].(string)
		if word == "" {
			return
		}
		if strings.EqualFold(word, state.Secret) {
			state.Winner = playerID
			return
		}
		state.Attempts[playerID] = strings.ToLower(word)
	case "end":
		// Host shortcut to finish the game early.
		if playerID == s.HostID {
			state.ForceEnd = true
		}
	}
}

func (Handler) IsRoundOver(s *partyhub.Session) bool {
	state := s.GameData.(*State)
	return state.Winner != "" || state.ForceEnd ||
		len(state.Attempts) >= len(s.Players)
}

func (Handler) RoundResults(s *partyhub.Session) *partyhub.RoundResults {
	state := s.GameData.(*State)
	scores := make(map[string]int)
	if state.Winner != "" {
		scores[state.Winner] = 2
	}
	return &partyhub.RoundResults{
		Scores:  scores,
		Summary: &Summary{Secret: state.Secret, Winner: state.Winner},
	}
}

func (Handler) IsGameOver(s *partyhub.Session) bool {
	state := s.GameData.(*State)
	return state.ForceEnd || s.Round >= s.TotalRounds
}

func (Handler) EncodeState(data any) ([]byte, error) {
	return msgpack.Marshal(data.(*State))
}

func (Handler) DecodeState(b []byte) (any, error) {
	state := new(State)
	if err := msgpack.Unmarshal(b, state); err != nil {
		return nil, err
	}
	return state, nil
}

// maskWord reveals the first letter and the word's shape.
func maskWord(word string) string {
	masked := []rune(word)
	for i := 1; i < len(masked); i++ {
		masked[i] = '_'
	}
	return string(masked)
}
