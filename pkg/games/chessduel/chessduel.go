// Package chessduel implements a two-player best-of-N chess match.
// Each round is one full game; colors alternate between rounds and a
// win is worth one point.
package chessduel

import (
	"image"

	"github.com/notnil/chess"
	"github.com/razzie/chessimage"
	"github.com/vmihailenco/msgpack/v5"

	"partyhub/pkg/partyhub"
)

const boardSize = 512

// State is the opaque game-data bag: the running game plus the color
// assignment for the current round.
type State struct {
	Game  *chess.Game
	White string
	Black string
}

// Summary is the display payload for one completed round.
type Summary struct {
	Outcome string `json:"outcome"`
	Method  string `json:"method"`
	Winner  string `json:"winner,omitempty"`
}

type Handler struct{}

var _ partyhub.GameHandler = Handler{}
var _ partyhub.StateCodec = Handler{}
var _ partyhub.BoardRenderer = Handler{}

func (Handler) MinPlayers() int    { return 2 }
func (Handler) MaxPlayers() int    { return 2 }
func (Handler) DefaultRounds() int { return 3 }

func (Handler) CreateInitialState(settings map[string]any) any {
	return &State{}
}

func (Handler) OnRoundStart(s *partyhub.Session) {
	state := s.GameData.(*State)
	state.Game = chess.NewGame()
	// Colors alternate: the host opens as white in round 1.
	if s.Round%2 == 1 {
		state.White, state.Black = s.Players[0].ID, s.Players[1].ID
	} else {
		state.White, state.Black = s.Players[1].ID, s.Players[0].ID
	}
}

func (Handler) HandleAction(s *partyhub.Session, playerID, action string, payload map[string]any) {
	state := s.GameData.(*State)
	if state.Game == nil || state.Game.Outcome() != chess.NoOutcome {
		return
	}
	switch action {
	case "move":
		if playerID != state.toMove() {
			return
		}
		uci, _ := payload["uci"].(string)
		move, err := chess.UCINotation{}.Decode(state.Game.Position(), uci)
		if err != nil {
			return
		}
		state.Game.Move(move)
	case "resign":
		switch playerID {
		case state.White:
			state.Game.Resign(chess.White)
		case state.Black:
			state.Game.Resign(chess.Black)
		}
	}
}

func (Handler) IsRoundOver(s *partyhub.Session) bool {
	state := s.GameData.(*State)
	return state.Game != nil && state.Game.Outcome() != chess.NoOutcome
}

func (Handler) RoundResults(s *partyhub.Session) *partyhub.RoundResults {
	state := s.GameData.(*State)
	scores := make(map[string]int)
	summary := &Summary{
		Outcome: state.Game.Outcome().String(),
		Method:  state.Game.Method().String(),
	}
	switch state.Game.Outcome() {
	case chess.WhiteWon:
		scores[state.White] = 1
		summary.Winner = state.White
	case chess.BlackWon:
		scores[state.Black] = 1
		summary.Winner = state.Black
	}
	return &partyhub.RoundResults{Scores: scores, Summary: summary}
}

func (Handler) IsGameOver(s *partyhub.Session) bool {
	return s.Round >= s.TotalRounds
}

// stateSnapshot is the persisted form: a FEN plus the color split.
// Restored games keep their position but not their move history.
type stateSnapshot struct {
	FEN   string `msgpack:"fen"`
	White string `msgpack:"white"`
	Black string `msgpack:"black"`
}

func (Handler) EncodeState(data any) ([]byte, error) {
	state := data.(*State)
	snap := &stateSnapshot{White: state.White, Black: state.Black}
	if state.Game != nil {
		snap.FEN = state.Game.FEN()
	}
	return msgpack.Marshal(snap)
}

func (Handler) DecodeState(b []byte) (any, error) {
	var snap stateSnapshot
	if err := msgpack.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	state := &State{White: snap.White, Black: snap.Black}
	if snap.FEN != "" {
		fen, err := chess.FEN(snap.FEN)
		if err != nil {
			return nil, err
		}
		state.Game = chess.NewGame(fen)
	}
	return state, nil
}

// RenderBoard draws the current position, highlighting the last move
// and any check.
func (Handler) RenderBoard(s *partyhub.Session) (image.Image, error) {
	state := s.GameData.(*State)
	if state.Game == nil {
		return nil, partyhub.ErrNotInProgress
	}
	pos := state.Game.Position()
	r, err := chessimage.NewRendererFromFEN(pos.String())
	if err != nil {
		return nil, err
	}
	if moves := state.Game.Moves(); len(moves) > 0 {
		move := moves[len(moves)-1]
		from, _ := chessimage.TileFromAN(move.S1().String())
		to, _ := chessimage.TileFromAN(move.S2().String())
		r.SetLastMove(chessimage.LastMove{From: from, To: to})
		if move.HasTag(chess.Check) {
			kingSq, _ := chessimage.TileFromAN(pos.Board().KingSquare(pos.Turn()).String())
			r.SetCheckTile(kingSq)
		}
	}
	return r.Render(chessimage.Options{
		PieceRatio: 1,
		BoardSize:  boardSize,
	})
}

func (state *State) toMove() string {
	if state.Game.Position().Turn() == chess.White {
		return state.White
	}
	return state.Black
}
