package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/justestif/go-spotify-dashboard/internal/playback"
)

// Client events.
const (
	eventStartSync = "start-playback-sync"
	eventStopSync  = "stop-playback-sync"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// frame is the envelope of every websocket message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type startSyncRequest struct {
	Session string `json:"session"`
}

// socketConn is one websocket client. It implements playback.Emitter.
type socketConn struct {
	id string
	ws *websocket.Conn

	mu sync.Mutex // serializes writes
}

// Emit writes an event frame to the client.
func (c *socketConn) Emit(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(frame{Event: event, Data: payload})
}

func (c *socketConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// socketRegistry tracks open connections so shutdown can close them.
type socketRegistry struct {
	mu    sync.Mutex
	conns map[string]*socketConn
}

func newSocketRegistry() *socketRegistry {
	return &socketRegistry{conns: make(map[string]*socketConn)}
}

func (r *socketRegistry) add(c *socketConn) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

func (r *socketRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

func (r *socketRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *socketRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.ws.Close()
		delete(r.conns, id)
	}
}

// Socket upgrades the request to a websocket and serves playback sync
// events until the client disconnects (GET /ws).
func (h *Handlers) Socket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	c := &socketConn{id: uuid.NewString(), ws: ws}
	logger := h.logger.With("conn", c.id)
	logger.Info("client connected")

	h.sockets.add(c)
	done := make(chan struct{})
	defer func() {
		close(done)
		h.sync.Stop(c.id)
		h.sockets.remove(c.id)
		ws.Close()
		logger.Info("client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("read failed", "err", err)
			}
			return
		}

		switch f.Event {
		case eventStartSync:
			var req startSyncRequest
			if len(f.Data) > 0 {
				_ = json.Unmarshal(f.Data, &req)
			}
			h.startSync(r, c, req.Session)
		case eventStopSync:
			h.sync.Stop(c.id)
		default:
			logger.Debug("unknown event", "event", f.Event)
		}
	}
}

func (h *Handlers) startSync(r *http.Request, c *socketConn, session string) {
	err := h.sync.Start(r.Context(), c.id, session, c)
	if err == nil {
		return
	}

	var message string
	switch {
	case errors.Is(err, playback.ErrNoSession):
		message = "No session provided"
	case errors.Is(err, playback.ErrInvalidSession):
		message = "Invalid session"
	default:
		h.logger.Error("starting playback sync failed", "conn", c.id, "err", err)
		message = "Failed to start playback sync"
	}
	_ = c.Emit(playback.EventError, playback.ErrorEvent{Message: message})
}
