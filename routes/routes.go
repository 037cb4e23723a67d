package routes

import (
	"marketdata_backend/controllers"
	"marketdata_backend/middleware"
	"marketdata_backend/services/stream"

	"github.com/gin-gonic/gin"
)

// Controllers bundles the handlers wired into the router.
type Controllers struct {
	Quotes *controllers.QuoteController
	Alerts *controllers.AlertController
	Status *controllers.StatusController
	Hub    *stream.Hub
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, ctrl Controllers, jwtSecret string) {
	// API v1 group
	api := router.Group("/api/v1")
	{
		// Quote routes
		quotes := api.Group("/quotes")
		{
			quotes.GET("/:symbol", ctrl.Quotes.GetQuote)
			quotes.GET("/:symbol/history", ctrl.Quotes.GetHistory)
			quotes.GET("/:symbol/latest", ctrl.Quotes.GetLatestPoints)
		}

		api.GET("/symbols", ctrl.Quotes.GetUniverse)
		api.GET("/status", ctrl.Status.GetStatus)

		// Alert routes require an owner token
		alerts := api.Group("/alerts", middleware.OwnerAuthMiddleware(jwtSecret))
		{
			alerts.GET("", ctrl.Alerts.ListAlerts)
			alerts.POST("", ctrl.Alerts.CreateAlert)
			alerts.POST("/:id/reactivate", ctrl.Alerts.ReactivateAlert)
			alerts.DELETE("/:id", ctrl.Alerts.DeleteAlert)
		}
	}

	// Live quote and alert stream
	if ctrl.Hub != nil {
		router.GET("/ws/stream", func(c *gin.Context) {
			ctrl.Hub.HandleWebSocket(c.Writer, c.Request)
		})
	}
}
