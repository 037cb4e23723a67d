package controllers

import (
	"net/http"

	"marketdata_backend/services/marketclock"
	"marketdata_backend/services/ratelimit"
	"marketdata_backend/services/refresher"
	"marketdata_backend/services/stream"

	"github.com/gin-gonic/gin"
)

// StatusController exposes operational state for the refresh pipeline.
type StatusController struct {
	clock        *marketclock.Clock
	governor     *ratelimit.Governor
	orchestrator *refresher.Orchestrator
	hub          *stream.Hub
}

// NewStatusController creates a new status controller.
func NewStatusController(
	clock *marketclock.Clock,
	governor *ratelimit.Governor,
	orchestrator *refresher.Orchestrator,
	hub *stream.Hub,
) *StatusController {
	return &StatusController{
		clock:        clock,
		governor:     governor,
		orchestrator: orchestrator,
		hub:          hub,
	}
}

// GetStatus handles GET /api/v1/status
func (sc *StatusController) GetStatus(c *gin.Context) {
	status := gin.H{
		"market": sc.clock.StatusInfo(),
		"rate_governor": gin.H{
			"load": sc.governor.CurrentLoad(),
			"cap":  sc.governor.Cap(),
		},
		"cycles": sc.orchestrator.LastStats(),
	}
	if sc.hub != nil {
		status["stream_clients"] = sc.hub.ClientCount()
	}
	c.JSON(http.StatusOK, status)
}
