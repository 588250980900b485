package ws

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/realtime"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// MountRoutes mounts the realtime websocket endpoint. The token comes
// either from the Authorization header or, for browser clients that
// cannot set headers on websocket requests, the token query parameter.
func MountRoutes(r *gin.Engine, gateway *realtime.Gateway, resolver *security.TokenResolver, cfg *config.Config) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg),
	}

	r.GET("/ws", func(c *gin.Context) {
		serveWS(c, gateway, resolver, &upgrader)
	})
}

func serveWS(c *gin.Context, gateway *realtime.Gateway, resolver *security.TokenResolver, upgrader *websocket.Upgrader) {
	token := bearerToken(c)
	identity, err := resolver.Resolve(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrMissingCredential):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		case errors.Is(err, security.ErrUnknownUser):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	client := realtime.NewClient(gateway, conn, identity.UserID)
	gateway.Register(client)
	client.Run()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

func originChecker(cfg *config.Config) func(r *http.Request) bool {
	origins := cfg.ParsedCORSOrigins()
	if !cfg.CORSEnabled || len(origins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed["*"] || allowed[origin]
	}
}
