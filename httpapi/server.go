// Package httpapi exposes the engine's operator-facing HTTP surface:
// health, Prometheus metrics, and kill switch control.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bybitengine/killswitch"
	"bybitengine/metrics"
)

// HealthChecker reports whether the engine's core loops are alive; the
// server does not know about loops or symbols itself.
type HealthChecker interface {
	Healthy() (bool, map[string]string)
}

// Server wraps the gin engine and its dependencies.
type Server struct {
	router *gin.Engine
	kill   *killswitch.Switch
	closer killswitch.Closer
	health HealthChecker
}

// New builds a Server. gin runs in release mode; request logging is left
// to the caller's reverse proxy or the engine's own structured logger.
// closer may be nil (e.g. backtest mode); activate then halts trading
// without cancelling orders or closing positions.
func New(kill *killswitch.Switch, closer killswitch.Closer, health HealthChecker) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{router: r, kill: kill, closer: closer, health: health}
	s.routes()
	return s
}

// Handler returns the http.Handler to mount on a listener.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	s.router.GET("/killswitch/status", s.handleKillSwitchStatus)
	s.router.POST("/killswitch/activate", s.handleKillSwitchActivate)
	s.router.POST("/killswitch/reset", s.handleKillSwitchReset)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ok, detail := s.health.Healthy()
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": ok, "detail": detail, "halted": s.kill.IsHalted()})
}

func (s *Server) handleKillSwitchStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"halted":           s.kill.IsHalted(),
		"activation_count": s.kill.ActivationCount(),
		"history":          s.kill.History(),
	})
}

type activateRequest struct {
	Reason         string   `json:"reason" binding:"required"`
	Symbols        []string `json:"symbols"`
	CancelOrders   *bool    `json:"cancel_orders"`
	ClosePositions *bool    `json:"close_positions"`
}

func (s *Server) handleKillSwitchActivate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cancelOrders := req.CancelOrders == nil || *req.CancelOrders
	closePositions := req.ClosePositions == nil || *req.ClosePositions

	activation := s.kill.Activate(req.Reason, req.Symbols, s.closer, cancelOrders, closePositions)
	c.JSON(http.StatusOK, gin.H{
		"timestamp":        activation.Timestamp.Format(time.RFC3339),
		"orders_cancelled": activation.OrdersCancelled,
		"positions_closed": activation.PositionsClosed,
		"errors":           activation.Errors,
	})
}

func (s *Server) handleKillSwitchReset(c *gin.Context) {
	if err := s.kill.Reset(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"halted": false})
}
