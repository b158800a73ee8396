// Package server exposes the wallet-UI facing command surface over
// HTTP. Every handler is a thin shim onto the orchestrator: it holds no
// session or queue state of its own.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/auth/jwt"
	"github.com/dappbridge/walletd/internal/common/cnst"
	"github.com/dappbridge/walletd/internal/core"
	"github.com/dappbridge/walletd/pkg/metrics"
)

// Server is the admin HTTP server.
type Server struct {
	logger  *zap.Logger
	router  *gin.Engine
	orch    *core.Orchestrator
	jwtSvc  *jwt.Service
	metrics *metrics.Metrics
}

// NewServer creates the admin server and registers its routes.
func NewServer(logger *zap.Logger, orch *core.Orchestrator, jwtSvc *jwt.Service, m *metrics.Metrics) *Server {
	s := &Server{
		logger:  logger.Named("server"),
		router:  gin.New(),
		orch:    orch,
		jwtSvc:  jwtSvc,
		metrics: m,
	}
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("walletd"))
	if m != nil {
		s.router.Use(m.Middleware())
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.jwtSvc))
	{
		api.GET("/sessions", s.handleListSessions)
		api.GET("/proposals", s.handleListProposals)
		api.GET("/actions", s.handleListActions)
		api.GET("/displayed_info", s.handleDisplayedInfo)

		api.POST("/proposals/:id/approve", s.handleApproveSession)
		api.POST("/proposals/:id/reject", s.handleRejectSession)
		api.POST("/actions/:id/approve", s.handleApproveRequest)
		api.POST("/actions/:id/reject", s.handleRejectRequest)
		api.POST("/sessions/:peer_id/disconnect", s.handleDisconnectSession)
	}
}

// Run starts the HTTP server on the given address.
func (s *Server) Run(addr string) error {
	s.logger.Info("admin server listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router exposes the gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.orch.ListSessions(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleListProposals(c *gin.Context) {
	proposals, err := s.orch.ListProposals(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": proposals})
}

func (s *Server) handleListActions(c *gin.Context) {
	actions, err := s.orch.ListPendingActions(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (s *Server) handleDisplayedInfo(c *gin.Context) {
	info, err := s.orch.DisplayedInfo(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type approveSessionRequest struct {
	Accounts []string `json:"accounts" binding:"required"`
}

func (s *Server) handleApproveSession(c *gin.Context) {
	var req approveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.orch.ApproveSession(c.Request.Context(), c.Param("id"), req.Accounts)
	if err != nil && !errors.Is(err, cnst.ErrTransport) {
		s.renderError(c, err)
		return
	}
	resp := gin.H{"session": session}
	if err != nil {
		// The session is connected; only the approval frame delivery
		// failed. Report both.
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRejectSession(c *gin.Context) {
	if err := s.orch.RejectSession(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (s *Server) handleApproveRequest(c *gin.Context) {
	if err := s.orch.ApproveRequest(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (s *Server) handleRejectRequest(c *gin.Context) {
	if err := s.orch.RejectRequest(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (s *Server) handleDisconnectSession(c *gin.Context) {
	if err := s.orch.DisconnectSession(c.Request.Context(), c.Param("peer_id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// renderError maps core errors to HTTP status codes.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cnst.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cnst.ErrAlreadyResolved),
		errors.Is(err, cnst.ErrDuplicateSession),
		errors.Is(err, cnst.ErrDuplicateRequest):
		status = http.StatusConflict
	case errors.Is(err, cnst.ErrInvalidAccounts),
		errors.Is(err, cnst.ErrUnsupportedVersion),
		errors.Is(err, cnst.ErrEmptyScope):
		status = http.StatusBadRequest
	case errors.Is(err, cnst.ErrTransport),
		errors.Is(err, cnst.ErrSigningFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
