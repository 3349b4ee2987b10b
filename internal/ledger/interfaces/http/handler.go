// Package http exposes the operation log and positions over REST.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/portfolioaccounting/internal/ledger/application"
	"github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

type Handler struct {
	service *application.LedgerService
}

func NewHandler(service *application.LedgerService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/ledger")
	{
		g.POST("/operations", h.RecordOperation)
		g.GET("/operations/:id", h.GetOperation)
		g.PUT("/operations/:id", h.UpdateOperation)
		g.DELETE("/operations/:id", h.DeleteOperation)
		g.GET("/accounts/:account_id/operations", h.ListOperations)
		g.GET("/accounts/:account_id/positions", h.ListPositions)
		g.POST("/accounts/:account_id/snapshot", h.ComputeSnapshot)
	}
}

type RecordOperationReq struct {
	AccountID    string `json:"account_id" binding:"required"`
	InstrumentID string `json:"instrument_id" binding:"required"`
	Kind         string `json:"kind" binding:"required"`
	Quantity     string `json:"quantity" binding:"required"`
	UnitPrice    string `json:"unit_price" binding:"required"`
	Fees         string `json:"fees"`
	ExecutedAt   string `json:"executed_at" binding:"required"`
	Notes        string `json:"notes"`
	Source       string `json:"source"`
	Actor        string `json:"actor" binding:"required"`
}

func (h *Handler) RecordOperation(c *gin.Context) {
	var req RecordOperationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid quantity", "")
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid unit_price", "")
		return
	}
	fees := decimal.Zero
	if req.Fees != "" {
		if fees, err = decimal.NewFromString(req.Fees); err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid fees", "")
			return
		}
	}
	executedAt, err := time.Parse(time.RFC3339, req.ExecutedAt)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "executed_at must be RFC3339", "")
		return
	}

	op, warnings, err := h.service.RecordOperation(c.Request.Context(), application.RecordOperationCmd{
		AccountID:    req.AccountID,
		InstrumentID: req.InstrumentID,
		Kind:         domain.OperationKind(req.Kind),
		Quantity:     qty,
		UnitPrice:    price,
		Fees:         fees,
		ExecutedAt:   executedAt,
		Notes:        req.Notes,
		Source:       req.Source,
		Actor:        req.Actor,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "failed to record operation", "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"operation": op, "warnings": warnings})
}

type UpdateOperationReq struct {
	Quantity   string `json:"quantity" binding:"required"`
	UnitPrice  string `json:"unit_price" binding:"required"`
	Fees       string `json:"fees"`
	ExecutedAt string `json:"executed_at" binding:"required"`
	Notes      string `json:"notes"`
	Actor      string `json:"actor" binding:"required"`
}

func (h *Handler) UpdateOperation(c *gin.Context) {
	var req UpdateOperationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	qty, err1 := decimal.NewFromString(req.Quantity)
	price, err2 := decimal.NewFromString(req.UnitPrice)
	executedAt, err3 := time.Parse(time.RFC3339, req.ExecutedAt)
	if err1 != nil || err2 != nil || err3 != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid quantity, unit_price or executed_at", "")
		return
	}
	fees := decimal.Zero
	if req.Fees != "" {
		var err error
		if fees, err = decimal.NewFromString(req.Fees); err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid fees", "")
			return
		}
	}

	op, warnings, err := h.service.UpdateOperation(c.Request.Context(), c.Param("id"), application.UpdateOperationCmd{
		Quantity:   qty,
		UnitPrice:  price,
		Fees:       fees,
		ExecutedAt: executedAt,
		Notes:      req.Notes,
		Actor:      req.Actor,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "failed to update operation", "operation_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"operation": op, "warnings": warnings})
}

func (h *Handler) DeleteOperation(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "actor is required", "")
		return
	}
	if err := h.service.DeleteOperation(c.Request.Context(), c.Param("id"), actor); err != nil {
		logging.Error(c.Request.Context(), "failed to delete operation", "operation_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"deleted": c.Param("id")})
}

func (h *Handler) GetOperation(c *gin.Context) {
	op, err := h.service.GetOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "operation not found", "")
		return
	}
	response.Success(c, op)
}

func (h *Handler) ListOperations(c *gin.Context) {
	ops, err := h.service.ListOperations(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, ops)
}

func (h *Handler) ListPositions(c *gin.Context) {
	positions, err := h.service.ListPositions(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, positions)
}

type SnapshotReq struct {
	Prices map[string]string `json:"prices"`
}

func (h *Handler) ComputeSnapshot(c *gin.Context) {
	var req SnapshotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	prices := make(map[string]decimal.Decimal, len(req.Prices))
	for instrument, raw := range req.Prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid price for "+instrument, "")
			return
		}
		prices[instrument] = price
	}

	snapshot, err := h.service.ComputeSnapshot(c.Request.Context(), c.Param("account_id"), prices)
	if err != nil {
		logging.Error(c.Request.Context(), "snapshot computation failed",
			"account_id", c.Param("account_id"), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if len(snapshot.Failures) > 0 {
		// surviving positions are returned alongside the rejected keys
		c.JSON(http.StatusUnprocessableEntity, snapshot)
		return
	}
	response.Success(c, snapshot)
}
