// Package server exposes the catalog and the collector execution engine
// over an HTTP API.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/querybridge/querybridge/internal/auth"
	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/executor"
	"github.com/querybridge/querybridge/internal/secrets"
	"github.com/querybridge/querybridge/internal/telemetry"
)

// Server wires the HTTP handlers to the engine and its collaborators.
type Server struct {
	store  catalog.Store
	exec   *executor.Executor
	writer telemetry.EventWriter
	auth   auth.Authenticator
	cipher *secrets.Cipher
	logger *zap.Logger
}

// New creates a Server with the given dependencies.
func New(
	store catalog.Store,
	exec *executor.Executor,
	writer telemetry.EventWriter,
	authenticator auth.Authenticator,
	cipher *secrets.Cipher,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:  store,
		exec:   exec,
		writer: writer,
		auth:   authenticator,
		cipher: cipher,
		logger: logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1", s.authMiddleware())
	{
		v1.POST("/collectors", s.registerCollector)
		v1.GET("/collectors", s.listCollectors)
		v1.GET("/collectors/:id", s.getCollector)
		v1.DELETE("/collectors/:id", s.deleteCollector)
		v1.POST("/collectors/:id/execute", s.executeCollector)

		v1.POST("/chains/execute", s.executeChain)

		v1.POST("/tools", s.createTool)
		v1.GET("/tools", s.listTools)
		v1.GET("/tools/:id", s.getTool)
		v1.DELETE("/tools/:id", s.deleteTool)

		v1.POST("/queries", s.createQuery)
		v1.POST("/queries/:id/render", s.renderQuery)
		v1.DELETE("/queries/:id", s.deleteQuery)

		v1.POST("/credentials", s.createCredential)
		v1.GET("/tools/:id/credentials", s.listToolCredentials)
		v1.DELETE("/credentials/:id", s.deleteCredential)
	}

	return r
}
