package websocket

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/gateway"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Options struct {
	BufferSize      int
	DeliveryTimeout time.Duration
	ReadTimeout     time.Duration
	MaxFrameSize    int64
}

// Handler upgrades HTTP requests and runs one read loop per connection.
type Handler struct {
	gateway  *gateway.Gateway
	upgrader websocket.Upgrader
	options  Options
	log      *slog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewHandler(g *gateway.Gateway, options Options, log *slog.Logger) *Handler {
	return &Handler{
		gateway: g,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		options: options,
		log:     log,
		conns:   make(map[string]*Conn),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(ws, h.options, h.log)
	go conn.writePump()
	h.track(conn)
	session := h.gateway.NewSession(conn)
	conn.log.Debug("Connection opened", "remote", r.RemoteAddr)

	defer func() {
		session.Close(context.Background())
		_ = conn.Close()
		h.untrack(conn)
		conn.log.Debug("Connection closed")
	}()

	h.readLoop(r.Context(), ws, conn, session)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *Conn, session *gateway.Session) {
	ws.SetReadLimit(h.options.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				conn.log.Warn("Read failed", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))

		var in event.Inbound
		if err = json.Unmarshal(data, &in); err != nil || in.Type == "" {
			conn.log.Debug("Malformed frame", "size", len(data))
			_ = conn.Send(ctx, event.NewError(errors.Reason(errors.ErrMalformedEvent)))
			continue
		}
		session.Handle(ctx, in)
		if session.State() == gateway.Closed {
			return
		}
	}
}

// CloseAll hangs up every open connection, used on shutdown since hijacked
// connections are not tracked by http.Server.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	h.log.Info("Connections closed", "count", len(conns))
}

// Open returns the number of connections being served.
func (h *Handler) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Handler) track(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

func (h *Handler) untrack(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.ID())
}
