package ws

import (
	"net/http"
	"time"

	"bazari/config"
	"bazari/internal/auth"
	"bazari/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UpgradeOrderEvents upgrades the connection for the admin order-events
// feed. Browsers cannot set Authorization headers on websocket dials, so the
// token travels as a query parameter.
func UpgradeOrderEvents(cfg *config.JWTConfig, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Role != domain.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := &Subscriber{
			UserID: claims.UserID,
			Send:   make(chan []byte, 256),
		}
		hub.Register(sub)
		defer sub.Close()

		go writePump(sub, conn)
		readPump(conn)
	}
}

func writePump(s *Subscriber, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-s.Send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
