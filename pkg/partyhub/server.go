package partyhub

import (
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strings"
	"sync"

	"github.com/razzie/jsonrpc"
	"github.com/skip2/go-qrcode"
	"golang.org/x/net/websocket"
)

// Server is the sample transport adapter: a small HTTP + jsonrpc
// gateway over the engine's function-call surface. It owns the
// broadcasting the engine deliberately leaves to its caller.
type Server struct {
	http.ServeMux
	mgr     *Manager
	baseURL string
	rooms   sync.Map // join code -> *room
}

// room is the set of websocket clients watching one session.
type room struct {
	mtx     sync.Mutex
	clients []*jsonrpc.JsonRPC
}

func NewServer(mgr *Manager, baseURL string) *Server {
	srv := &Server{
		mgr:     mgr,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}

	srv.HandleFunc("/api/create", srv.handleCreate)

	srv.HandleFunc("/api/game/", func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/api/game/")
		blob, ok := mgr.EncodeSession(code)
		if !ok {
			http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(blob)
	})

	srv.HandleFunc("/qr/", func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/qr/")
		img, err := qrcode.Encode(srv.baseURL+"/join/"+code, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	})

	srv.HandleFunc("/board/", func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/board/"), ".png")
		img, err := mgr.RenderBoard(code)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, img)
	})

	srv.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/ws/")
		websocket.Handler(func(ws *websocket.Conn) {
			srv.serveClient(ws, code)
		}).ServeHTTP(w, r)
	})

	return srv
}

type createRequest struct {
	GameType string         `json:"gameType"`
	Player   PlayerInfo     `json:"player"`
	Settings map[string]any `json:"settings"`
}

type createResponse struct {
	Session json.RawMessage `json:"session"`
	JoinURL string          `json:"joinUrl"`
}

func (srv *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := srv.mgr.Create(req.GameType, req.Player, req.Settings)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	blob, _ := srv.mgr.EncodeSession(sess.Code)
	writeJSON(w, &createResponse{
		Session: blob,
		JoinURL: srv.baseURL + "/join/" + sess.Code,
	})
}

// serveClient runs one websocket connection for its lifetime. The
// connection exposes the Game.* RPC methods and receives Session.Update
// notifications whenever anyone mutates the session.
func (srv *Server) serveClient(ws *websocket.Conn, code string) {
	client := jsonrpc.NewJsonRpc(ws)
	game := &Game{srv: srv, code: code, client: client}
	client.Register(game, "")

	srv.addClient(code, client)
	if blob, ok := srv.mgr.EncodeSession(code); ok {
		client.Notify("Session.Update", blob)
	}
	client.Serve()
	srv.removeClient(code, client)

	if game.playerID != "" {
		if _, ok := srv.mgr.Disconnect(code, game.playerID); ok {
			srv.broadcast(code)
		}
	}
}

// Game is the per-connection RPC receiver; method names follow the
// jsonrpc convention of TypeName.Method.
type Game struct {
	srv      *Server
	code     string
	client   *jsonrpc.JsonRPC
	playerID string
}

// Game.Join joins (or reconnects) the calling player. Guest IDs are
// minted here so the connection knows its player before the engine
// touches the roster.
func (g *Game) Join(p PlayerInfo, reply *json.RawMessage) error {
	if p.ID == "" {
		p.ID = NewGuestID()
	}
	if _, err := g.srv.mgr.Join(g.code, p); err != nil {
		return err
	}
	g.playerID = p.ID
	blob, _ := g.srv.mgr.EncodeSession(g.code)
	*reply = blob
	g.srv.broadcast(g.code)
	return nil
}

// Game.Start begins the game; only the host's connection may call it.
func (g *Game) Start(unused string, reply *json.RawMessage) error {
	if _, err := g.srv.mgr.Start(g.code, g.playerID); err != nil {
		return err
	}
	blob, _ := g.srv.mgr.EncodeSession(g.code)
	*reply = blob
	g.srv.broadcast(g.code)
	return nil
}

type actionArgs struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

// actionReply mirrors ActionResult on the wire, with the session
// pre-serialized under its own lock.
type actionReply struct {
	Session      json.RawMessage `json:"session"`
	RoundEnded   bool            `json:"roundEnded"`
	GameEnded    bool            `json:"gameEnded"`
	RoundResults *RoundResults   `json:"roundResults,omitempty"`
}

// Game.Act submits one game action for the calling player.
func (g *Game) Act(args actionArgs, reply *actionReply) error {
	res, err := g.srv.mgr.HandleAction(g.code, g.playerID, args.Action, args.Payload)
	if err != nil {
		return err
	}
	blob, _ := g.srv.mgr.EncodeSession(g.code)
	*reply = actionReply{
		Session:      blob,
		RoundEnded:   res.RoundEnded,
		GameEnded:    res.GameEnded,
		RoundResults: res.Results,
	}
	g.srv.broadcast(g.code)
	return nil
}

func (srv *Server) loadRoom(code string) *room {
	v, _ := srv.rooms.LoadOrStore(code, &room{})
	return v.(*room)
}

func (srv *Server) addClient(code string, client *jsonrpc.JsonRPC) {
	rm := srv.loadRoom(code)
	rm.mtx.Lock()
	defer rm.mtx.Unlock()
	rm.clients = append(rm.clients, client)
}

func (srv *Server) removeClient(code string, client *jsonrpc.JsonRPC) {
	rm := srv.loadRoom(code)
	rm.mtx.Lock()
	defer rm.mtx.Unlock()
	for i, cl := range rm.clients {
		if cl == client {
			rm.clients = append(rm.clients[:i], rm.clients[i+1:]...)
			break
		}
	}
	if len(rm.clients) == 0 {
		srv.rooms.Delete(code)
	}
}

func (srv *Server) broadcast(code string) {
	blob, ok := srv.mgr.EncodeSession(code)
	if !ok {
		return
	}
	rm := srv.loadRoom(code)
	rm.mtx.Lock()
	defer rm.mtx.Unlock()
	for _, client := range rm.clients {
		client.Notify("Session.Update", blob)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// httpStatus maps engine errors to response codes for the REST routes;
// the websocket RPC surface returns them as-is.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownGameType), errors.Is(err, ErrInvalidGameType):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyStarted), errors.Is(err, ErrFull),
		errors.Is(err, ErrNotEnoughPlayers), errors.Is(err, ErrNotInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
