// Package http exposes income events and consolidated reports over REST.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/portfolioaccounting/internal/income/application"
	"github.com/wyfcoding/portfolioaccounting/internal/income/domain"
)

type Handler struct {
	service *application.IncomeService
}

func NewHandler(service *application.IncomeService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/income")
	{
		g.POST("", h.RegisterIncome)
		g.GET("/:id", h.GetIncome)
		g.GET("/instruments/:instrument_id", h.ListByInstrument)
		g.POST("/accounts/:account_id/report", h.ConsolidateReport)
	}
}

type RegisterIncomeReq struct {
	AccountID        string `json:"account_id" binding:"required"`
	InstrumentID     string `json:"instrument_id" binding:"required"`
	Type             string `json:"type" binding:"required"`
	ValuePerUnit     string `json:"value_per_unit"`
	AffectedQuantity string `json:"affected_quantity"`
	TotalValue       string `json:"total_value"`
	TaxWithheld      string `json:"tax_withheld"`
	BonusFactor      string `json:"bonus_factor"`
	PaymentDate      string `json:"payment_date" binding:"required"`
	Actor            string `json:"actor" binding:"required"`
}

func (h *Handler) RegisterIncome(c *gin.Context) {
	var req RegisterIncomeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	paymentDate, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "payment_date must be YYYY-MM-DD", "")
		return
	}

	event, warnings, err := h.service.RegisterIncome(c.Request.Context(), application.RegisterIncomeCmd{
		AccountID:        req.AccountID,
		InstrumentID:     req.InstrumentID,
		Type:             domain.IncomeType(req.Type),
		ValuePerUnit:     parseDecimal(req.ValuePerUnit),
		AffectedQuantity: parseDecimal(req.AffectedQuantity),
		TotalValue:       parseDecimal(req.TotalValue),
		TaxWithheld:      parseDecimal(req.TaxWithheld),
		BonusFactor:      parseDecimal(req.BonusFactor),
		PaymentDate:      paymentDate,
		Actor:            req.Actor,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "failed to register income", "error", err)
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"income": event, "warnings": warnings})
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (h *Handler) GetIncome(c *gin.Context) {
	event, err := h.service.GetIncome(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "income event not found", "")
		return
	}
	response.Success(c, event)
}

func (h *Handler) ListByInstrument(c *gin.Context) {
	events, err := h.service.ListByInstrument(c.Request.Context(), c.Param("instrument_id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, events)
}

type ConsolidateReq struct {
	Prices map[string]string `json:"prices"`
}

func (h *Handler) ConsolidateReport(c *gin.Context) {
	var req ConsolidateReq
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

	report, err := h.service.ConsolidateByAccount(c.Request.Context(), c.Param("account_id"), prices)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, report)
}
