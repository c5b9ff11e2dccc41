package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"wainbox/internal/auth"
	"wainbox/internal/broadcast"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	sendBufferSize = 256
	pingInterval   = 20 * time.Second
	// pongWait is 30s since we ping every 20s
	pongWait     = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var errSlowConsumer = errors.New("websocket send buffer full")

// Upgrader configures the websocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketHandler subscribes browser sessions to number rooms
type WebSocketHandler struct {
	broadcaster *broadcast.Broadcaster
	authService *auth.Service
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(broadcaster *broadcast.Broadcaster, authService *auth.Service) *WebSocketHandler {
	return &WebSocketHandler{broadcaster: broadcaster, authService: authService}
}

// WebSocketClient is a connected session subscribed to one room
type WebSocketClient struct {
	conn      *websocket.Conn
	room      string
	principal uint
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Send queues payload for the write pump without blocking the broadcaster
func (c *WebSocketClient) Send(payload []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *WebSocketClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// HandleWebSocket godoc
// @Summary Subscribe to realtime events
// @Description Upgrades to a websocket subscribed to room number:<id>. The token is passed as a query parameter.
// @Tags realtime
// @Param room query string true "Room, number:<id>"
// @Param token query string true "Access token"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /ws [get]
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		if header := c.Request().Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(header[len("Bearer "):])
		}
	}
	if token == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "Missing authorization token"})
	}

	principal, err := h.authService.ResolvePrincipal(c.Request().Context(), token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "Invalid token"})
	}

	room := c.QueryParam("room")
	numberID, ok := parseRoom(room)
	if !ok {
		return badRequest(c, "room must be number:<id>")
	}
	if !principal.CanAccess(numberID) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "number not visible"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("WebSocket upgrade failed")
		return nil
	}

	client := &WebSocketClient{
		conn:      conn,
		room:      room,
		principal: principal.ID,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}
	h.broadcaster.Join(room, client)
	log.Debug().Str("room", room).Uint("principal_id", principal.ID).Msg("WebSocket client connected")

	go client.writePump()
	go h.readPump(client)

	return nil
}

// ConnectedClients returns the number of sessions subscribed to room
func (h *WebSocketHandler) ConnectedClients(room string) int {
	return h.broadcaster.RoomSize(room)
}

// readPump drains client frames until the connection drops
func (h *WebSocketHandler) readPump(c *WebSocketClient) {
	defer func() {
		h.broadcaster.Leave(c.room, c)
		c.close()
		log.Debug().Str("room", c.room).Uint("principal_id", c.principal).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("room", c.room).Msg("WebSocket read error")
			}
			return
		}
	}
}

// writePump writes queued events and keeps the connection alive with pings
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn().Err(err).Str("room", c.room).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// parseRoom extracts the number id of a number:<id> room
func parseRoom(room string) (uint, bool) {
	raw, ok := strings.CutPrefix(room, "number:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
