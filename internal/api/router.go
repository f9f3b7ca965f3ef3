package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rule-engine-service/internal/config"
)

func NewRouter(h *Handler, logger *logrus.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/alerts", h.AlertFeed)

	api := r.Group(cfg.API.BasePath)
	{
		// Evaluation
		api.POST("/evaluate", h.EvaluateTelemetry)

		// Rules
		api.POST("/rules", h.CreateRule)
		api.GET("/rules", h.ListRules)
		api.GET("/rules/:id", h.GetRule)
		api.PATCH("/rules/:id/status", h.UpdateRuleStatus)
		api.DELETE("/rules/:id", h.DeleteRule)

		// Alerts
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.PATCH("/alerts/:id/acknowledge", h.AcknowledgeAlert)
		api.PATCH("/alerts/:id/resolve", h.ResolveAlert)
		api.GET("/alerts/:id/notifications", h.GetAlertNotifications)

		// Contact Points
		api.POST("/contact-points", h.CreateContactPoint)
		api.GET("/contact-points", h.ListContactPoints)
		api.DELETE("/contact-points/:id", h.DeleteContactPoint)
	}
	return r
}
