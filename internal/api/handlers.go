package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rule-engine-service/internal/db"
	"rule-engine-service/internal/engine"
	"rule-engine-service/internal/models"
)

type Handler struct {
	db     *db.DB
	engine *engine.Engine
	logger *logrus.Logger
	hub    *Hub
}

func NewHandler(db *db.DB, eng *engine.Engine, logger *logrus.Logger, hub *Hub) *Handler {
	return &Handler{db: db, engine: eng, logger: logger, hub: hub}
}

// EvaluateTelemetry is the synchronous entry point used by the data service;
// the Kafka consumer is the asynchronous one. Both run the same engine pass.
func (h *Handler) EvaluateTelemetry(c *gin.Context) {
	var ev models.TelemetryEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		h.logger.Errorf("Invalid telemetry payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	if ev.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "device_id is required"})
		return
	}

	outcome, err := h.engine.OnTelemetry(c.Request.Context(), ev)
	if err != nil {
		h.logger.Errorf("Evaluation failed for device %s: %v", ev.DeviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Evaluation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": outcome})
}

// CreateRule validates and stores a new rule. Operator and property are
// checked here so evaluation never sees a rule it cannot handle.
func (h *Handler) CreateRule(c *gin.Context) {
	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		h.logger.Errorf("Invalid rule payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	if rule.Scope == "" {
		rule.Scope = models.ScopeSelectedDevices
	}
	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !engine.KnownProperty(rule.Property) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown telemetry property " + rule.Property})
		return
	}

	now := time.Now().UTC()
	rule.ID = uuid.New()
	rule.Status = models.RuleStatusActive
	rule.LastTriggeredAt = nil
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.db.CreateRule(c.Request.Context(), rule); err != nil {
		h.logger.Errorf("Failed to create rule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create rule"})
		return
	}

	h.logger.Infof("Created rule %s (%s)", rule.ID, rule.Name)
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": rule})
}

func (h *Handler) ListRules(c *gin.Context) {
	page, pageSize := pagination(c)
	status := c.Query("status")

	rules, total, err := h.db.ListRules(c.Request.Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Errorf("Failed to list rules: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to list rules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true, "data": rules, "total": total,
		"page": page, "page_size": pageSize,
	})
}

func (h *Handler) GetRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid rule id"})
		return
	}
	rule, err := h.db.GetRule(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Rule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rule})
}

func (h *Handler) UpdateRuleStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid rule id"})
		return
	}

	var req struct {
		Status models.RuleStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	switch req.Status {
	case models.RuleStatusActive, models.RuleStatusPaused, models.RuleStatusArchived:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid status"})
		return
	}

	if err := h.db.UpdateRuleStatus(c.Request.Context(), id, req.Status); err != nil {
		h.logger.Errorf("Failed to update rule %s status: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Rule not found"})
		return
	}
	h.logger.Infof("Rule %s status updated to %s", id, req.Status)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid rule id"})
		return
	}
	if err := h.db.DeleteRule(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Rule not found"})
		return
	}
	h.logger.Infof("Rule %s deleted", id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	page, pageSize := pagination(c)
	deviceID := c.Query("device_id")
	status := c.Query("status")

	var ruleID *uuid.UUID
	if raw := c.Query("rule_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid rule_id"})
			return
		}
		ruleID = &id
	}

	alerts, total, err := h.db.ListAlerts(c.Request.Context(), deviceID, ruleID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Errorf("Failed to list alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true, "data": alerts, "total": total,
		"page": page, "page_size": pageSize,
	})
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid alert id"})
		return
	}
	alert, err := h.db.GetAlert(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alert})
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid alert id"})
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	_ = c.ShouldBindJSON(&req)

	alert, err := h.db.AcknowledgeAlert(c.Request.Context(), id, req.AcknowledgedBy)
	if err != nil {
		h.logger.Errorf("Failed to acknowledge alert %s: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Alert not found or not open"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alert})
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid alert id"})
		return
	}
	alert, err := h.db.ResolveAlert(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to resolve alert %s: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Alert not found or already resolved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alert})
}

// GetAlertNotifications returns the delivery ledger for one alert.
func (h *Handler) GetAlertNotifications(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid alert id"})
		return
	}
	attempts, err := h.db.GetAttemptsByAlert(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get attempts for alert %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to get notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": attempts})
}

func (h *Handler) CreateContactPoint(c *gin.Context) {
	var req struct {
		Name          string          `json:"name"`
		Type          string          `json:"type"`
		Configuration json.RawMessage `json:"configuration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	if req.Type == "" || len(req.Configuration) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "type and configuration are required"})
		return
	}

	cp := models.ContactPoint{
		ID:            uuid.New(),
		Name:          req.Name,
		Type:          req.Type,
		Configuration: req.Configuration,
		Status:        "active",
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.db.CreateContactPoint(c.Request.Context(), cp); err != nil {
		h.logger.Errorf("Failed to create contact point: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create contact point"})
		return
	}
	h.logger.Infof("Created contact point %s (%s)", cp.ID, cp.Type)
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": cp})
}

func (h *Handler) ListContactPoints(c *gin.Context) {
	cps, err := h.db.ListContactPoints(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list contact points: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to list contact points"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": cps})
}

func (h *Handler) DeleteContactPoint(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid contact point id"})
		return
	}
	if err := h.db.DeleteContactPoint(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Contact point not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
