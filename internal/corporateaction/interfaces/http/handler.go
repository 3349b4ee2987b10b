// Package http exposes corporate event management over REST.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/portfolioaccounting/internal/corporateaction/application"
	"github.com/wyfcoding/portfolioaccounting/internal/corporateaction/domain"
)

type Handler struct {
	service *application.CorporateActionService
}

func NewHandler(service *application.CorporateActionService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/corporate-events")
	{
		g.POST("", h.AnnounceEvent)
		g.GET("/:id", h.GetEvent)
		g.POST("/:id/confirm", h.ConfirmEvent)
		g.POST("/:id/cancel", h.CancelEvent)
		g.POST("/:id/execute", h.ExecuteEvent)
		g.GET("", h.ListEvents)
	}
}

type AnnounceEventReq struct {
	InstrumentID      string `json:"instrument_id" binding:"required"`
	Type              string `json:"type" binding:"required"`
	RecordDate        string `json:"record_date"`
	EffectiveDate     string `json:"effective_date" binding:"required"`
	QuantityFactor    string `json:"quantity_factor"`
	PriceFactor       string `json:"price_factor"`
	NewInstrumentID   string `json:"new_instrument_id"`
	ConversionRatio   string `json:"conversion_ratio"`
	SubscriptionPrice string `json:"subscription_price"`
	SubscriptionRatio string `json:"subscription_ratio"`
	Actor             string `json:"actor" binding:"required"`
}

func (h *Handler) AnnounceEvent(c *gin.Context) {
	var req AnnounceEventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	effectiveDate, err := time.Parse("2006-01-02", req.EffectiveDate)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "effective_date must be YYYY-MM-DD", "")
		return
	}
	var recordDate time.Time
	if req.RecordDate != "" {
		if recordDate, err = time.Parse("2006-01-02", req.RecordDate); err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "record_date must be YYYY-MM-DD", "")
			return
		}
	}

	cmd := application.AnnounceEventCmd{
		InstrumentID:    req.InstrumentID,
		Type:            domain.EventType(req.Type),
		RecordDate:      recordDate,
		EffectiveDate:   effectiveDate,
		NewInstrumentID: req.NewInstrumentID,
		Actor:           req.Actor,
	}
	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"quantity_factor", req.QuantityFactor, &cmd.QuantityFactor},
		{"price_factor", req.PriceFactor, &cmd.PriceFactor},
		{"conversion_ratio", req.ConversionRatio, &cmd.ConversionRatio},
		{"subscription_price", req.SubscriptionPrice, &cmd.SubscriptionPrice},
		{"subscription_ratio", req.SubscriptionRatio, &cmd.SubscriptionRatio},
	} {
		d, err := parseDecimal(field.raw)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, field.name+" must be a decimal", "")
			return
		}
		*field.dst = d
	}

	event, err := h.service.AnnounceEvent(c.Request.Context(), cmd)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to announce event", "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event_id": event.EventID})
}

// parseDecimal treats an absent field as zero; a malformed one is the
// caller's error.
func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) GetEvent(c *gin.Context) {
	event, err := h.service.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "event not found", "")
		return
	}
	response.Success(c, event)
}

func (h *Handler) ListEvents(c *gin.Context) {
	instrumentID := c.Query("instrument_id")
	if instrumentID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "instrument_id is required", "")
		return
	}
	events, err := h.service.ListEvents(c.Request.Context(), instrumentID)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, events)
}

func (h *Handler) ConfirmEvent(c *gin.Context) {
	h.transition(c, h.service.ConfirmEvent)
}

func (h *Handler) CancelEvent(c *gin.Context) {
	h.transition(c, h.service.CancelEvent)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, eventID, actor string) error) {
	actor := c.Query("actor")
	if actor == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "actor is required", "")
		return
	}
	if err := fn(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"event_id": c.Param("id")})
}

func (h *Handler) ExecuteEvent(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "actor is required", "")
		return
	}
	summary, err := h.service.ExecuteEvent(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to execute event", "event_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, summary)
}
