// Package http exposes audit queries and reversals over REST.
package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/portfolioaccounting/internal/audit/application"
	"github.com/wyfcoding/portfolioaccounting/internal/audit/domain"
)

type Handler struct {
	service *application.AuditService
}

func NewHandler(service *application.AuditService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/audit")
	{
		g.GET("/entries/:id", h.GetEntry)
		g.GET("/entries/:id/changes", h.GetChangedFields)
		g.POST("/entries/:id/reverse", h.ReverseEntry)
		g.GET("/report", h.QueryReport)
	}
}

func (h *Handler) GetEntry(c *gin.Context) {
	entry, err := h.service.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "audit entry not found", "")
		return
	}
	response.Success(c, entry)
}

func (h *Handler) GetChangedFields(c *gin.Context) {
	entry, err := h.service.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "audit entry not found", "")
		return
	}
	changes, err := entry.ChangedFields()
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, changes)
}

func (h *Handler) ReverseEntry(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "actor is required", "")
		return
	}
	reversal, err := h.service.ReverseEntry(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to reverse audit entry",
			"entry_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, reversal)
}

func (h *Handler) QueryReport(c *gin.Context) {
	filter := domain.Filter{
		EntityType: domain.EntityType(c.Query("entity_type")),
		EntityID:   c.Query("entity_id"),
		Actor:      c.Query("actor"),
	}
	if actions := c.Query("actions"); actions != "" {
		for _, a := range strings.Split(actions, ",") {
			filter.Actions = append(filter.Actions, domain.Action(strings.TrimSpace(a)))
		}
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "from must be RFC3339", "")
			return
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "to must be RFC3339", "")
			return
		}
		filter.To = t
	}
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	report, err := h.service.QueryReport(c.Request.Context(), filter)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, report)
}
