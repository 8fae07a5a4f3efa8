package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upload-widget/backend/internal/models"
	"github.com/upload-widget/backend/internal/testutil"
	"github.com/upload-widget/backend/internal/upload"
)

func dialUploads(t *testing.T, mgr UploadManager) *websocket.Conn {
	t.Helper()
	ws, _, err := dialUploadsWith(t, mgr, WebSocketOptions{}, nil)
	require.NoError(t, err)
	return ws
}

func dialUploadsWith(t *testing.T, mgr UploadManager, opts WebSocketOptions, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	e := echo.New()
	e.GET("/api/ws/uploads", NewWebSocketHandler(mgr, opts, nil).HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/uploads"
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if ws != nil {
		t.Cleanup(func() { ws.Close() })
	}
	return ws, resp, err
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

// readSnapshotWhere reads snapshots until cond holds.
func readSnapshotWhere(t *testing.T, ws *websocket.Conn, cond func(models.UploadSnapshot) bool) models.UploadSnapshot {
	t.Helper()
	for {
		msg := readUntil(t, ws, MsgTypeSnapshot)
		var snap models.UploadSnapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		if cond(snap) {
			return snap
		}
	}
}

func TestWebSocket_PushesSnapshots(t *testing.T) {
	mgr := upload.NewManager(testutil.NewMockTransport())
	ws := dialUploads(t, mgr)

	readUntil(t, ws, MsgTypeConnected)
	initial := readSnapshotWhere(t, ws, func(models.UploadSnapshot) bool { return true })
	assert.True(t, initial.Empty)

	id := mgr.AddFiles(upload.NewMemoryFile("photo.png", "image/png", make([]byte, 100)))[0]
	mgr.OnProgress(id, 40, 100)

	snap := readSnapshotWhere(t, ws, func(s models.UploadSnapshot) bool {
		return len(s.Entries) == 1 && s.Entries[0].Progress == 40
	})
	assert.Equal(t, models.UploadStatusUploading, snap.Entries[0].Status)
	assert.Equal(t, int64(40), snap.Entries[0].UploadedBytes)
}

func TestWebSocket_Commands(t *testing.T) {
	transport := testutil.NewMockTransport()
	transport.AbortOnCancel = true
	mgr := upload.NewManager(transport)
	ids := mgr.AddFiles(
		upload.NewMemoryFile("clip.mp4", "video/mp4", []byte("movie")),
		upload.NewMemoryFile("notes.txt", "text/plain", []byte("txt")),
	)
	ws := dialUploads(t, mgr)
	readUntil(t, ws, MsgTypeConnected)

	// ping
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	assert.Equal(t, "p1", readUntil(t, ws, MsgTypePong).ID)

	// removing an in-flight entry is refused
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeRemove, ID: ids[0]}))
	errMsg := readUntil(t, ws, MsgTypeError)
	var wsErr WSErrorResponse
	require.NoError(t, json.Unmarshal(errMsg.Payload, &wsErr))
	assert.Equal(t, "CONFLICT", wsErr.Code)

	// removing the rejected entry works
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeRemove, ID: ids[1]}))
	assert.Equal(t, ids[1], readUntil(t, ws, MsgTypeAck).ID)

	// toggle
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeToggle}))
	ack := readUntil(t, ws, MsgTypeAck)
	assert.JSONEq(t, `{"listVisible":false}`, string(ack.Payload))

	// cancel; the abort removes the entry and a snapshot reflects it
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeCancel, ID: ids[0]}))
	ack = readUntil(t, ws, MsgTypeAck)
	assert.JSONEq(t, `{"cancelled":true}`, string(ack.Payload))
	readSnapshotWhere(t, ws, func(s models.UploadSnapshot) bool { return s.Empty })

	// unknown
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeCancel, ID: ids[0]}))
	require.NoError(t, json.Unmarshal(readUntil(t, ws, MsgTypeError).Payload, &wsErr))
	assert.Equal(t, "NOT_FOUND", wsErr.Code)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "bogus"}))
	require.NoError(t, json.Unmarshal(readUntil(t, ws, MsgTypeError).Payload, &wsErr))
	assert.Equal(t, "INVALID_TYPE", wsErr.Code)
}

func TestWebSocket_AllowOrigins(t *testing.T) {
	mgr := upload.NewManager(testutil.NewMockTransport())
	opts := WebSocketOptions{AllowOrigins: []string{"http://localhost:5173"}}

	_, resp, err := dialUploadsWith(t, mgr, opts, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := dialUploadsWith(t, mgr, opts, http.Header{"Origin": {"http://localhost:5173"}})
	require.NoError(t, err)
	readUntil(t, ws, MsgTypeConnected)
}

func TestWebSocket_ClosesOnShutdown(t *testing.T) {
	mgr := upload.NewManager(testutil.NewMockTransport())
	shutdown := make(chan struct{})
	ws, _, err := dialUploadsWith(t, mgr, WebSocketOptions{Shutdown: shutdown}, nil)
	require.NoError(t, err)
	readUntil(t, ws, MsgTypeConnected)

	close(shutdown)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			return
		}
	}
}
