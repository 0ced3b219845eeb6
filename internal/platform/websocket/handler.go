package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/carecore/internal/platform/auth"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Handler upgrades HTTP connections and runs the read and write pumps.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler accepts connections from the listed origins. An empty list or
// "*" accepts any origin.
func NewHandler(hub *Hub, origins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		logger: logger.With().Str("component", "websocket").Logger(),
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(allowed) == 0 || allowed[origin]
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect requires an identified caller. Initial topics may be given
// as repeated ?topic= parameters.
func (h *Handler) HandleConnect(c echo.Context) error {
	user := auth.UserFromContext(c.Request().Context())
	if user.Anonymous() {
		return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
			"kind":    "unauthorized",
			"message": "an identified user is required to open the event stream",
		})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := &Client{
		ID:   uuid.New().String(),
		User: user,
		Send: make(chan []byte, sendBuffer),
	}
	h.hub.Register(client)
	if topics := c.QueryParams()["topic"]; len(topics) > 0 {
		h.ack(client, h.hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: topics}, time.Now().UTC()))
	}

	h.logger.Info().Str("client_id", client.ID).Str("user_id", user.ID).Msg("event stream opened")
	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) ack(client *Client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		h.logger.Info().Str("client_id", client.ID).Msg("event stream closed")
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.ack(client, Event{Type: "error", Timestamp: time.Now().UTC(), Data: json.RawMessage(`"malformed message"`)})
			continue
		}
		h.ack(client, h.hub.ProcessMessage(client, msg, time.Now().UTC()))
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
