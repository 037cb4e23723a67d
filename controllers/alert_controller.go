package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"marketdata_backend/middleware"
	"marketdata_backend/models"
	"marketdata_backend/services/alerts"
	"marketdata_backend/services/symbols"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AlertController manages alert rule CRUD and reactivation.
type AlertController struct {
	repo     alerts.Repository
	engine   *alerts.Engine
	registry *symbols.Registry
}

// NewAlertController creates a new alert controller.
func NewAlertController(repo alerts.Repository, engine *alerts.Engine, registry *symbols.Registry) *AlertController {
	return &AlertController{repo: repo, engine: engine, registry: registry}
}

type createAlertRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Condition string `json:"condition" binding:"required"`
	Threshold string `json:"threshold" binding:"required"`
	Message   string `json:"message"`
}

// CreateAlert handles POST /api/v1/alerts
func (ac *AlertController) CreateAlert(c *gin.Context) {
	ownerID, err := middleware.OwnerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}

	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	condition := models.ConditionKind(req.Condition)
	if !condition.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "condition must be price_above, price_below or price_equal",
		})
		return
	}

	threshold, err := decimal.NewFromString(req.Threshold)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "threshold must be a decimal number"})
		return
	}

	if !ac.registry.Contains(req.Symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_symbol",
			"message": "Symbol is not in the configured universe",
		})
		return
	}

	rule := &models.AlertRule{
		OwnerID:   ownerID,
		Symbol:    req.Symbol,
		Condition: condition,
		Threshold: threshold,
		Message:   req.Message,
	}
	if err := ac.repo.Create(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

// ListAlerts handles GET /api/v1/alerts
func (ac *AlertController) ListAlerts(c *gin.Context) {
	ownerID, err := middleware.OwnerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}

	rules, err := ac.repo.ByOwner(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(rules), "data": rules})
}

// ReactivateAlert handles POST /api/v1/alerts/:id/reactivate
func (ac *AlertController) ReactivateAlert(c *gin.Context) {
	ownerID, err := middleware.OwnerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}

	id, err := parseRuleID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "id must be a positive integer"})
		return
	}

	rule, err := ac.engine.Reactivate(c.Request.Context(), id, ownerID)
	if errors.Is(err, alerts.ErrRuleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Alert rule not found"})
		return
	}
	if errors.Is(err, alerts.ErrNotTriggered) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_triggered",
			"message": "Only triggered alerts can be reactivated",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

// DeleteAlert handles DELETE /api/v1/alerts/:id
func (ac *AlertController) DeleteAlert(c *gin.Context) {
	ownerID, err := middleware.OwnerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}

	id, err := parseRuleID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "id must be a positive integer"})
		return
	}

	if err := ac.repo.Delete(c.Request.Context(), id, ownerID); err != nil {
		if errors.Is(err, alerts.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Alert rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func parseRuleID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
