package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/upload-widget/backend/internal/models"
	"github.com/upload-widget/backend/internal/upload"
)

// WebSocket message types for the snapshot protocol
const (
	// Client -> Server messages
	MsgTypeCancel = "cancel"
	MsgTypeRemove = "remove"
	MsgTypeToggle = "toggle"
	MsgTypePing   = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSnapshot  = "snapshot"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const writeWait = 10 * time.Second

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketOptions tunes the WebSocket handler.
type WebSocketOptions struct {
	// MaxMessageKB limits inbound command size, 64 when zero.
	MaxMessageKB int
	// AllowOrigins lists the browser origins allowed to connect. Empty or
	// "*" allows any origin.
	AllowOrigins []string
	// Shutdown is closed when the server starts shutting down; open
	// connections are closed then.
	Shutdown <-chan struct{}
}

// WebSocketHandler pushes snapshots to connected clients and applies their
// cancel, remove and toggle commands
type WebSocketHandler struct {
	manager        UploadManager
	upgrader       websocket.Upgrader
	maxMessageSize int64
	shutdown       <-chan struct{}
	logger         *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket snapshot handler
func NewWebSocketHandler(manager UploadManager, opts WebSocketOptions, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxMessageKB <= 0 {
		opts.MaxMessageKB = 64
	}
	return &WebSocketHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(opts.AllowOrigins),
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxMessageSize: int64(opts.MaxMessageKB) * 1024,
		shutdown:       opts.Shutdown,
		logger:         logger,
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o != "" {
			set[o] = true
		}
	}
	if len(set) == 0 || set["*"] {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	c.ws.Close()
}

// HandleWebSocket upgrades the connection and runs the snapshot protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxMessageSize)

	conn := &wsConn{ws: ws}
	wsh.logger.Debug("websocket client connected", "remote", c.RealIP())

	if err := conn.send(WSMessage{Type: MsgTypeConnected}); err != nil {
		return nil
	}

	snapshots, unsubscribe := wsh.manager.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go wsh.pushSnapshots(conn, snapshots, done)

	// Main message loop
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Warn("websocket connection error", "error", err)
			}
			break
		}
		wsh.handleCommand(conn, msg)
	}

	wsh.logger.Debug("websocket client disconnected", "remote", c.RealIP())
	return nil
}

func (wsh *WebSocketHandler) pushSnapshots(conn *wsConn, snapshots <-chan models.UploadSnapshot, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-wsh.shutdown:
			// Unblocks the read loop in HandleWebSocket.
			conn.close(websocket.CloseGoingAway, "server shutting down")
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := conn.send(WSMessage{Type: MsgTypeSnapshot, Payload: mustJSON(snap)}); err != nil {
				return
			}
		}
	}
}

func (wsh *WebSocketHandler) handleCommand(conn *wsConn, msg WSMessage) {
	switch msg.Type {
	case MsgTypePing:
		// Respond with pong to keep connection alive
		conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID})
	case MsgTypeCancel:
		if msg.ID == "" {
			wsh.sendError(conn, msg.ID, "id is required", "VALIDATION_ERROR")
			return
		}
		if _, ok := wsh.manager.Get(msg.ID); !ok {
			wsh.sendError(conn, msg.ID, "upload not found", "NOT_FOUND")
			return
		}
		cancelled := wsh.manager.Cancel(msg.ID)
		conn.send(WSMessage{Type: MsgTypeAck, ID: msg.ID, Payload: mustJSON(map[string]bool{"cancelled": cancelled})})
	case MsgTypeRemove:
		if err := wsh.manager.Remove(msg.ID); err != nil {
			code := "INTERNAL_ERROR"
			switch {
			case errors.Is(err, upload.ErrEntryNotFound):
				code = "NOT_FOUND"
			case errors.Is(err, upload.ErrEntryInFlight):
				code = "CONFLICT"
			}
			wsh.sendError(conn, msg.ID, err.Error(), code)
			return
		}
		conn.send(WSMessage{Type: MsgTypeAck, ID: msg.ID})
	case MsgTypeToggle:
		visible := wsh.manager.ToggleListVisibility()
		conn.send(WSMessage{Type: MsgTypeAck, Payload: mustJSON(map[string]bool{"listVisible": visible})})
	default:
		wsh.sendError(conn, msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

func (wsh *WebSocketHandler) sendError(conn *wsConn, id, message, code string) {
	conn.send(WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
