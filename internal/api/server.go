package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/internal/socket"
	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// Server is the thin HTTP surface: the websocket endpoint plus health and
// session lifecycle routes. Everything stateful happens behind the store and
// the socket layer; these handlers only translate HTTP to store calls.
type Server struct {
	sessions interfaces.SessionStore
	registry *registry.Registry
	ws       *socket.Handler
	log      zerolog.Logger
}

// NewServer creates the HTTP server.
func NewServer(sessions interfaces.SessionStore, reg *registry.Registry, ws *socket.Handler, log zerolog.Logger) *Server {
	return &Server{
		sessions: sessions,
		registry: reg,
		ws:       ws,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/ws", func(c *gin.Context) {
		s.ws.ServeHTTP(c.Writer, c.Request)
	})

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/sessions", s.listSessions)
		api.POST("/sessions/:id/activate", s.setStatus(types.StatusActive))
		api.POST("/sessions/:id/archive", s.setStatus(types.StatusArchived))
		api.PUT("/sessions/:id/text", s.updateTextContent)
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.sessions.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"connections": s.registry.Stats(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.sessions.ListSessions(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// setStatus returns a handler that moves a session to the given lifecycle
// status. The socket layer's archive lock reads the result of these
// transitions on its next store read.
func (s *Server) setStatus(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		if err := s.sessions.SetStatus(c.Request.Context(), sessionID, status); err != nil {
			s.respondStoreError(c, sessionID, err)
			return
		}
		s.log.Info().Str("session_id", sessionID).Str("status", status).Msg("session status changed")
		c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "status": status})
	}
}

func (s *Server) updateTextContent(c *gin.Context) {
	sessionID := c.Param("id")

	var body struct {
		TextContent string `json:"textContent"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.sessions.SetTextContent(c.Request.Context(), sessionID, body.TextContent); err != nil {
		s.respondStoreError(c, sessionID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID})
}

func (s *Server) respondStoreError(c *gin.Context, sessionID string, err error) {
	if err == interfaces.ErrSessionNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	s.log.Error().Err(err).Str("session_id", sessionID).Msg("store operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
