// Package http exposes the manual adjustment workflow over REST.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/portfolioaccounting/internal/adjustment/application"
	"github.com/wyfcoding/portfolioaccounting/internal/adjustment/domain"
)

type Handler struct {
	service *application.AdjustmentService
}

func NewHandler(service *application.AdjustmentService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/adjustments")
	{
		g.POST("", h.ProposeAdjustment)
		g.GET("/:id", h.GetAdjustment)
		g.POST("/:id/decide", h.DecideAdjustment)
		g.GET("/pending", h.ListPending)
	}
}

type ProposeAdjustmentReq struct {
	AccountID     string `json:"account_id" binding:"required"`
	InstrumentID  string `json:"instrument_id" binding:"required"`
	Field         string `json:"field" binding:"required"`
	ProposedValue string `json:"proposed_value" binding:"required"`
	Reason        string `json:"reason" binding:"required"`
	RequestedBy   string `json:"requested_by" binding:"required"`
}

func (h *Handler) ProposeAdjustment(c *gin.Context) {
	var req ProposeAdjustmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	proposed, err := decimal.NewFromString(req.ProposedValue)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid proposed_value", "")
		return
	}

	result, err := h.service.ProposeAdjustment(c.Request.Context(), application.ProposeAdjustmentCmd{
		AccountID:     req.AccountID,
		InstrumentID:  req.InstrumentID,
		Field:         domain.AdjustmentField(req.Field),
		ProposedValue: proposed,
		Reason:        req.Reason,
		RequestedBy:   req.RequestedBy,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "failed to propose adjustment", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if result.Adjustment == nil {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type DecideAdjustmentReq struct {
	Decision string `json:"decision" binding:"required"`
	Actor    string `json:"actor" binding:"required"`
	Reason   string `json:"reason"`
}

func (h *Handler) DecideAdjustment(c *gin.Context) {
	var req DecideAdjustmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	adjustment, err := h.service.DecideAdjustment(c.Request.Context(), c.Param("id"),
		application.Decision(req.Decision), req.Actor, req.Reason)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to decide adjustment",
			"adjustment_id", c.Param("id"), "decision", req.Decision, "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, adjustment)
}

func (h *Handler) GetAdjustment(c *gin.Context) {
	adjustment, err := h.service.GetAdjustment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "adjustment not found", "")
		return
	}
	response.Success(c, adjustment)
}

func (h *Handler) ListPending(c *gin.Context) {
	adjustments, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, adjustments)
}
