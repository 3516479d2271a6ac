package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrChuw/scrcpy-manager/models"
)

func startHub(t *testing.T, ctrl Controller) (*WebSocketHub, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewWebSocketHub(zerolog.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(ctrl, nil, hub, zerolog.Nop()))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub, conn := startHub(t, &fakeController{})

	hub.Publish(models.Event{Kind: models.EventWindowStarted, Alias: "Chat", Detail: "com.example.chat"})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, models.EventWindowStarted, msg.Event.Kind)
	assert.Equal(t, "Chat", msg.Event.Alias)
}

func TestHubExecutesCommands(t *testing.T) {
	ctrl := &fakeController{}
	_, conn := startHub(t, ctrl)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageCommand, Command: "all"}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageResult, msg.Type)
	require.NotNil(t, msg.Result)
	assert.Equal(t, "ok all", msg.Result.Message)
	assert.Empty(t, msg.Error)
	assert.Equal(t, []string{"all"}, ctrl.submitted())
}

func TestHubRejectsUnknownMessages(t *testing.T) {
	_, conn := startHub(t, &fakeController{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)
}

func TestHubDropsClientOnClose(t *testing.T) {
	hub, conn := startHub(t, &fakeController{})

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
