package partyhub

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Archive records finished games in SQLite for history and
// leaderboards. Live session state never touches it.
type Archive struct {
	conn *sql.DB
}

// GameRow represents one finished game.
type GameRow struct {
	ID         int64
	Code       string
	GameType   string
	Rounds     int
	FinishedAt time.Time
}

// GamePlayerRow represents one player's final standing in a game.
type GamePlayerRow struct {
	GameID   int64
	PlayerID string
	Name     string
	Score    int
	IsHost   bool
}

// OpenArchive opens (or creates) the archive database.
func OpenArchive(path string) (*Archive, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}
	a := &Archive{conn: conn}
	if err := a.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.conn.Close()
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		game_type TEXT NOT NULL,
		rounds INTEGER NOT NULL DEFAULT 0,
		finished_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS game_players (
		game_id INTEGER NOT NULL REFERENCES games(id),
		player_id TEXT NOT NULL,
		name TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		is_host INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (game_id, player_id)
	);

	CREATE INDEX IF NOT EXISTS idx_game_players_player
		ON game_players(player_id);
	`
	_, err := a.conn.Exec(schema)
	return err
}

// RecordFinished writes one finished session and its final scores.
func (a *Archive) RecordFinished(sess *Session) error {
	tx, err := a.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO games (code, game_type, rounds) VALUES (?, ?, ?)`,
		sess.Code, sess.GameType, sess.Round,
	)
	if err != nil {
		return err
	}
	gameID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, p := range sess.Players {
		if _, err := tx.Exec(
			`INSERT INTO game_players (game_id, player_id, name, score, is_host)
			 VALUES (?, ?, ?, ?, ?)`,
			gameID, p.ID, p.Name, p.Score, p.IsHost,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PlayerHistory returns the most recent finished games a player took
// part in, newest first.
func (a *Archive) PlayerHistory(playerID string, limit int) ([]GameRow, error) {
	rows, err := a.conn.Query(
		`SELECT g.id, g.code, g.game_type, g.rounds, g.finished_at
		 FROM games g
		 JOIN game_players gp ON gp.game_id = g.id
		 WHERE gp.player_id = ?
		 ORDER BY g.id DESC LIMIT ?`,
		playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []GameRow
	for rows.Next() {
		var g GameRow
		if err := rows.Scan(&g.ID, &g.Code, &g.GameType, &g.Rounds, &g.FinishedAt); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// Standings returns the final scores of one archived game.
func (a *Archive) Standings(gameID int64) ([]GamePlayerRow, error) {
	rows, err := a.conn.Query(
		`SELECT game_id, player_id, name, score, is_host
		 FROM game_players WHERE game_id = ? ORDER BY score DESC`,
		gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []GamePlayerRow
	for rows.Next() {
		var p GamePlayerRow
		if err := rows.Scan(&p.GameID, &p.PlayerID, &p.Name, &p.Score, &p.IsHost); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}
