package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"careconnect-server/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// TokenValidator verifies the access token presented on connect.
type TokenValidator interface {
	ValidateAccessToken(token string) (*utils.Claims, error)
}

// Handler upgrades authenticated requests to websocket connections bound to
// a Hub.
type Handler struct {
	hub      *Hub
	tokens   TokenValidator
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a Handler. allowedOrigins restricts the Origin header;
// a "*" entry or an empty list accepts any origin.
func NewHandler(hub *Hub, tokens TokenValidator, allowedOrigins []string, logger zerolog.Logger) *Handler {
	h := &Handler{hub: hub, tokens: tokens, logger: logger.With().Str("component", "ws").Logger()}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Connect handles GET /ws?token=<access token>.
func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.tokens.ValidateAccessToken(c.Query("token"))
	if err != nil {
		utils.Unauthorized(c, "Invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(uuid.NewString(), claims.UserID, sendBuffer)
	h.hub.Register(c.Request.Context(), client)
	h.logger.Debug().Str("client_id", client.ID).Str("user_id", client.UserID).Msg("client connected")

	go h.writePump(client, conn)
	h.readPump(client, conn)
}

func (h *Handler) readPump(client *Client, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(context.Background(), client)
		conn.Close()
		h.logger.Debug().Str("client_id", client.ID).Msg("client disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", client.ID).Msg("unexpected close")
			}
			return
		}
		h.hub.HandleMessage(client, message)
	}
}

func (h *Handler) writePump(client *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
