package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MrChuw/scrcpy-manager/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// Message is the envelope exchanged with WebSocket clients.
type Message struct {
	Type    string                `json:"type"`
	Command string                `json:"command,omitempty"`
	Event   *models.Event         `json:"event,omitempty"`
	Result  *models.CommandResult `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
}

const (
	MessageEvent   = "event"
	MessageCommand = "command"
	MessageResult  = "result"
	MessageError   = "error"
)

type Client struct {
	hub  *WebSocketHub
	ctrl Controller
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHub streams session events to every connected client.
type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
}

func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

// Run serves registrations until ctx is done, then closes every connection.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Client disconnected")

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.conn.Close()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Publish broadcasts a session event. Clients whose queue is full miss it.
func (h *WebSocketHub) Publish(event models.Event) {
	data, err := json.Marshal(Message{Type: MessageEvent, Event: &event})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn().Str("kind", string(event.Kind)).Msg("Client queue full, dropping event")
		}
	}
}

// ClientCount reports the number of registered clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func HandleWebSocket(hub *WebSocketHub, ctrl Controller, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:  hub,
		ctrl: ctrl,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump executes command messages from the client and queues the replies.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Message{Type: MessageError, Error: "invalid message: " + err.Error()})
			continue
		}
		switch msg.Type {
		case MessageCommand:
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			result, err := c.ctrl.Submit(ctx, msg.Command)
			cancel()
			reply := Message{Type: MessageResult, Result: &result}
			if err != nil {
				reply.Error = err.Error()
			}
			c.reply(reply)
		default:
			c.reply(Message{Type: MessageError, Error: "unsupported message type " + msg.Type})
		}
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn().Msg("Client queue full, dropping reply")
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
