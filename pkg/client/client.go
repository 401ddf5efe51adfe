// Package client is a Go client for the partyhub gateway, mainly used
// by tests and bots. It mirrors the websocket jsonrpc surface: Game.*
// calls out, Session.Update notifications in.
package client

import (
	"io"
	"strings"
	"sync/atomic"

	"github.com/razzie/jsonrpc"
	"golang.org/x/net/websocket"

	"partyhub/pkg/partyhub"
)

type Connection struct {
	ws      io.Closer
	client  *jsonrpc.JsonRPC
	updates chan *partyhub.Session

	// C delivers every session update pushed by the gateway.
	C <-chan *partyhub.Session
	// State holds the most recent session update.
	State atomic.Pointer[partyhub.Session]
}

// Dial connects to a session's websocket endpoint. joinURL is the
// human-facing join link (http[s]://host/join/CODE).
func Dial(joinURL string) (*Connection, error) {
	wsURL := strings.NewReplacer(
		"http://", "ws://",
		"https://", "wss://",
		"/join/", "/ws/",
	).Replace(joinURL)
	ws, err := websocket.Dial(wsURL, "", wsURL)
	if err != nil {
		return nil, err
	}
	conn := &Connection{
		ws:      ws,
		client:  jsonrpc.NewJsonRpc(ws),
		updates: make(chan *partyhub.Session),
	}
	conn.C = conn.updates
	conn.client.Register(&Session{conn: conn}, "")
	go conn.client.Serve()
	return conn, nil
}

// Join joins (or reconnects) as the given player.
func (conn *Connection) Join(p partyhub.PlayerInfo) (*partyhub.Session, error) {
	sess := new(partyhub.Session)
	if err := conn.client.Call("Game.Join", p, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Start asks the gateway to start the game; fails unless this
// connection joined as the host.
func (conn *Connection) Start() (*partyhub.Session, error) {
	sess := new(partyhub.Session)
	if err := conn.client.Call("Game.Start", "", sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Act submits one game action.
func (conn *Connection) Act(action string, payload map[string]any) (*partyhub.ActionResult, error) {
	res := new(partyhub.ActionResult)
	args := map[string]any{"action": action, "payload": payload}
	if err := conn.client.Call("Game.Act", args, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Close drops the connection; the gateway reports the disconnect to
// the engine on its side.
func (conn *Connection) Close() error {
	return conn.ws.Close()
}

// Session receives the gateway's push notifications. The type name is
// significant: jsonrpc derives the "Session.Update" method name from it.
type Session struct {
	conn *Connection
}

func (sess *Session) Update(update *partyhub.Session, unused *bool) error {
	sess.conn.State.Store(update)
	go func() {
		sess.conn.updates <- update
	}()
	return nil
}
