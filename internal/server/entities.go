package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/query"
)

type createToolRequest struct {
	Name     string `json:"name" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	BaseURL  string `json:"baseUrl"`
	AuthType string `json:"authType"`
}

func (s *Server) createTool(c *gin.Context) {
	var req createToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := &catalog.Tool{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Kind:      req.Kind,
		BaseURL:   req.BaseURL,
		AuthType:  req.AuthType,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveTool(c.Request.Context(), t); err != nil {
		s.internalError(c, "save tool failed", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) listTools(c *gin.Context) {
	tools, err := s.store.ListTools(c.Request.Context())
	if err != nil {
		s.internalError(c, "list tools failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

func (s *Server) getTool(c *gin.Context) {
	t, err := s.store.GetTool(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "get tool failed", err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tool not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTool(c *gin.Context) {
	if err := s.store.DeleteTool(c.Request.Context(), c.Param("id")); err != nil {
		s.internalError(c, "delete tool failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createQueryRequest struct {
	ToolID   string `json:"toolId" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Template string `json:"template" binding:"required"`
}

func (s *Server) createQuery(c *gin.Context) {
	var req createQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tool, err := s.store.GetTool(c.Request.Context(), req.ToolID)
	if err != nil {
		s.internalError(c, "get tool failed", err)
		return
	}
	if tool == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tool not found"})
		return
	}

	q := &catalog.Query{
		ID:         uuid.New().String(),
		ToolID:     tool.ID,
		Name:       req.Name,
		Template:   req.Template,
		Parameters: query.Placeholders(req.Template),
		CreatedAt:  time.Now(),
	}
	if err := s.store.SaveQuery(c.Request.Context(), q); err != nil {
		s.internalError(c, "save query failed", err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

type renderQueryRequest struct {
	Parameters map[string]string `json:"parameters"`
}

func (s *Server) renderQuery(c *gin.Context) {
	var req renderQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := s.store.GetQuery(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "get query failed", err)
		return
	}
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "query not found"})
		return
	}

	rendered, err := query.Render(q.Template, req.Parameters)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rendered": rendered})
}

func (s *Server) deleteQuery(c *gin.Context) {
	if err := s.store.DeleteQuery(c.Request.Context(), c.Param("id")); err != nil {
		s.internalError(c, "delete query failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createCredentialRequest struct {
	ToolID string `json:"toolId" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Value  string `json:"value" binding:"required"`
}

// credentialView is the API shape of a credential. Secret material stays
// sealed; only metadata leaves the server.
type credentialView struct {
	ID        string    `json:"id"`
	ToolID    string    `json:"toolId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) createCredential(c *gin.Context) {
	if s.cipher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential encryption key not configured"})
		return
	}

	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tool, err := s.store.GetTool(c.Request.Context(), req.ToolID)
	if err != nil {
		s.internalError(c, "get tool failed", err)
		return
	}
	if tool == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tool not found"})
		return
	}

	ciphertext, nonce, err := s.cipher.Seal([]byte(req.Value))
	if err != nil {
		s.internalError(c, "seal credential failed", err)
		return
	}

	cred := &catalog.Credential{
		ID:         uuid.New().String(),
		ToolID:     tool.ID,
		Name:       req.Name,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		CreatedAt:  time.Now(),
	}
	if err := s.store.SaveCredential(c.Request.Context(), cred); err != nil {
		s.internalError(c, "save credential failed", err)
		return
	}

	c.JSON(http.StatusCreated, credentialView{
		ID:        cred.ID,
		ToolID:    cred.ToolID,
		Name:      cred.Name,
		CreatedAt: cred.CreatedAt,
	})
}

func (s *Server) listToolCredentials(c *gin.Context) {
	creds, err := s.store.ListCredentialsForTool(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "list credentials failed", err)
		return
	}
	views := make([]credentialView, 0, len(creds))
	for _, cred := range creds {
		views = append(views, credentialView{
			ID:        cred.ID,
			ToolID:    cred.ToolID,
			Name:      cred.Name,
			CreatedAt: cred.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"credentials": views})
}

func (s *Server) deleteCredential(c *gin.Context) {
	if err := s.store.DeleteCredential(c.Request.Context(), c.Param("id")); err != nil {
		s.internalError(c, "delete credential failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}
