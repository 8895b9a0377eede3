package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/executor"
	"github.com/querybridge/querybridge/internal/graph"
	"github.com/querybridge/querybridge/internal/telemetry"
)

type registerCollectorRequest struct {
	Name           string            `json:"name" binding:"required"`
	FilePath       string            `json:"filePath" binding:"required"`
	InputSchema    map[string]any    `json:"inputSchema"`
	OutputSchema   map[string]any    `json:"outputSchema"`
	TimeoutSeconds int               `json:"timeoutSeconds"`
	Version        string            `json:"version"`
	Dependencies   []string          `json:"dependencies"`
	Environment    map[string]string `json:"environment"`
}

func (s *Server) registerCollector(c *gin.Context) {
	var req registerCollectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := catalog.Register(c.Request.Context(), s.store, catalog.RegistrationSpec{
		Name:           req.Name,
		FilePath:       req.FilePath,
		InputSchema:    req.InputSchema,
		OutputSchema:   req.OutputSchema,
		TimeoutSeconds: req.TimeoutSeconds,
		Version:        req.Version,
		Dependencies:   req.Dependencies,
		Environment:    req.Environment,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"collector": result.Collector,
		"warnings":  result.Warnings,
	})
}

func (s *Server) listCollectors(c *gin.Context) {
	filter := catalog.CollectorFilter{
		EnabledOnly: c.Query("enabled") == "true",
	}
	collectors, err := s.store.ListCollectors(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "list collectors failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collectors": collectors})
}

func (s *Server) getCollector(c *gin.Context) {
	col, err := s.store.GetCollector(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "get collector failed", err)
		return
	}
	if col == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "collector not found"})
		return
	}
	c.JSON(http.StatusOK, col)
}

func (s *Server) deleteCollector(c *gin.Context) {
	col, err := s.store.GetCollector(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "get collector failed", err)
		return
	}
	if col == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "collector not found"})
		return
	}
	if err := s.store.DeleteCollector(c.Request.Context(), col.ID); err != nil {
		s.internalError(c, "delete collector failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type executeOptions struct {
	TimeoutMs        int    `json:"timeoutMs"`
	ValidateInput    *bool  `json:"validateInput"`
	ValidateOutput   *bool  `json:"validateOutput"`
	WorkingDirectory string `json:"workingDirectory"`
}

func (o executeOptions) toEngine() executor.Options {
	return executor.Options{
		TimeoutMs:            o.TimeoutMs,
		SkipInputValidation:  o.ValidateInput != nil && !*o.ValidateInput,
		SkipOutputValidation: o.ValidateOutput != nil && !*o.ValidateOutput,
		WorkingDirectory:     o.WorkingDirectory,
	}
}

type executeCollectorRequest struct {
	Input   any            `json:"input"`
	Options executeOptions `json:"options"`
}

func (s *Server) executeCollector(c *gin.Context) {
	var req executeCollectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.exec.ExecuteByName(c.Request.Context(), c.Param("id"), req.Input, req.Options.toEngine())
	if err != nil {
		s.internalError(c, "execute collector failed", err)
		return
	}

	s.writer.Write(executionEvent(result, ""))
	c.JSON(http.StatusOK, result)
}

type executeChainRequest struct {
	Collectors []string       `json:"collectors" binding:"required"`
	Input      any            `json:"input"`
	Options    executeOptions `json:"options"`
}

func (s *Server) executeChain(c *gin.Context) {
	var req executeChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Load in the order given; independent collectors keep that order.
	collectors := make([]*catalog.Collector, 0, len(req.Collectors))
	for _, name := range req.Collectors {
		col, err := s.store.GetCollector(c.Request.Context(), name)
		if err != nil {
			s.internalError(c, "load chain collector failed", err)
			return
		}
		if col == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "collector not found: " + name})
			return
		}
		collectors = append(collectors, col)
	}

	chain, err := s.exec.ExecuteChain(c.Request.Context(), collectors, req.Input, req.Options.toEngine())
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": cycleErr.Error()})
			return
		}
		var dupErr *graph.DuplicateNameError
		if errors.As(err, &dupErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": dupErr.Error()})
			return
		}
		s.internalError(c, "execute chain failed", err)
		return
	}

	for _, result := range chain.Results {
		s.writer.Write(executionEvent(result, chain.ExecutionID))
	}
	c.JSON(http.StatusOK, chain)
}

func executionEvent(r *executor.ExecutionResult, chainID string) *telemetry.ExecutionEvent {
	var exitCode int32 = -1
	if r.ExitCode != nil {
		exitCode = int32(*r.ExitCode)
	}
	return &telemetry.ExecutionEvent{
		ExecutionID:      r.ExecutionID,
		ChainExecutionID: chainID,
		CollectorID:      r.CollectorID,
		CollectorName:    r.CollectorName,
		Timestamp:        time.Now(),
		Success:          r.Success,
		ErrorKind:        string(r.ErrorKind),
		Error:            r.Error,
		ExitCode:         exitCode,
		DurationMs:       r.DurationMs,
		StdoutBytes:      int32(len(r.Stdout)),
		StderrBytes:      int32(len(r.Stderr)),
		Source:           "api",
	}
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
