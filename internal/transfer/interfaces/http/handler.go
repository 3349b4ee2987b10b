// Package http exposes custody transfers over REST.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/portfolioaccounting/internal/transfer/application"
)

type Handler struct {
	service *application.TransferService
}

func NewHandler(service *application.TransferService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/transfers")
	{
		g.POST("", h.CreateTransfer)
		g.GET("/:id", h.GetTransfer)
		g.POST("/:id/validate", h.ValidateTransfer)
		g.POST("/:id/execute", h.ExecuteTransfer)
		g.POST("/:id/cancel", h.CancelTransfer)
		g.GET("", h.ListTransfers)
	}
}

type CreateTransferReq struct {
	SourceAccountID string `json:"source_account_id" binding:"required"`
	DestAccountID   string `json:"dest_account_id" binding:"required"`
	InstrumentID    string `json:"instrument_id" binding:"required"`
	Quantity        string `json:"quantity" binding:"required"`
	Actor           string `json:"actor" binding:"required"`
}

func (h *Handler) CreateTransfer(c *gin.Context) {
	var req CreateTransferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid quantity", "")
		return
	}

	transfer, err := h.service.CreateTransfer(c.Request.Context(), application.CreateTransferCmd{
		SourceAccountID: req.SourceAccountID,
		DestAccountID:   req.DestAccountID,
		InstrumentID:    req.InstrumentID,
		Quantity:        qty,
		Actor:           req.Actor,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "failed to create transfer", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transfer_id": transfer.TransferID})
}

func (h *Handler) GetTransfer(c *gin.Context) {
	transfer, err := h.service.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "transfer not found", "")
		return
	}
	response.Success(c, transfer)
}

func (h *Handler) ValidateTransfer(c *gin.Context) {
	result, err := h.service.ValidateTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, result)
}

func (h *Handler) ExecuteTransfer(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "actor is required", "")
		return
	}
	exec, err := h.service.ExecuteTransfer(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		logging.Error(c.Request.Context(), "transfer execution failed",
			"transfer_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
		return
	}
	response.Success(c, exec)
}

func (h *Handler) CancelTransfer(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "actor is required", "")
		return
	}
	if err := h.service.CancelTransfer(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"transfer_id": c.Param("id")})
}

func (h *Handler) ListTransfers(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "account_id is required", "")
		return
	}
	transfers, err := h.service.ListTransfers(c.Request.Context(), accountID)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, transfers)
}
