package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// YearBreakdown is one calendar year's slice of an instrument's income.
type YearBreakdown struct {
	Year         int             `json:"year"`
	Total        decimal.Decimal `json:"total"`
	TaxWithheld  decimal.Decimal `json:"tax_withheld"`
	Net          decimal.Decimal `json:"net"`
	PaymentCount int             `json:"payment_count"`
}

// InstrumentReport consolidates every income event on one instrument.
type InstrumentReport struct {
	InstrumentID       string          `json:"instrument_id"`
	Dividends          decimal.Decimal `json:"dividends"`
	Interest           decimal.Decimal `json:"interest"`
	BonusShares        decimal.Decimal `json:"bonus_shares"`
	TaxWithheld        decimal.Decimal `json:"tax_withheld"`
	NetIncome          decimal.Decimal `json:"net_income"`
	PaymentCount       int             `json:"payment_count"`
	FirstPayment       time.Time       `json:"first_payment"`
	LastPayment        time.Time       `json:"last_payment"`
	ByYear             []YearBreakdown `json:"by_year"`
	ApproxYieldPercent decimal.Decimal `json:"approx_yield_percent"`
}

// ConsolidatedReport is the full income summary handed back to callers.
type ConsolidatedReport struct {
	Instruments []*InstrumentReport `json:"instruments"`
	TotalNet    decimal.Decimal     `json:"total_net"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// Consolidate groups income events by instrument. Bonus share counts use the
// quantity the event recorded as affected. prices keys current prices by
// instrument and feeds the approximate yield; a missing or zero price yields
// zero with a warning. Instruments are emitted in sorted order so the report
// is deterministic.
func Consolidate(events []*IncomeEvent, prices map[string]decimal.Decimal) *ConsolidatedReport {
	report := &ConsolidatedReport{TotalNet: decimal.Zero}

	byInstrument := make(map[string][]*IncomeEvent)
	for _, e := range events {
		byInstrument[e.InstrumentID] = append(byInstrument[e.InstrumentID], e)
	}
	instruments := make([]string, 0, len(byInstrument))
	for id := range byInstrument {
		instruments = append(instruments, id)
	}
	sort.Strings(instruments)

	hundred := decimal.NewFromInt(100)
	for _, id := range instruments {
		ir := &InstrumentReport{
			InstrumentID: id,
			Dividends:    decimal.Zero,
			Interest:     decimal.Zero,
			BonusShares:  decimal.Zero,
			TaxWithheld:  decimal.Zero,
			NetIncome:    decimal.Zero,
		}
		years := make(map[int]*YearBreakdown)

		for _, e := range byInstrument[id] {
			switch e.Type {
			case IncomeDividend:
				ir.Dividends = ir.Dividends.Add(e.TotalValue)
			case IncomeInterest:
				ir.Interest = ir.Interest.Add(e.TotalValue)
			case IncomeBonus:
				ir.BonusShares = ir.BonusShares.Add(e.BonusShares(e.AffectedQuantity))
			}
			ir.TaxWithheld = ir.TaxWithheld.Add(e.TaxWithheld)
			ir.NetIncome = ir.NetIncome.Add(e.NetValue())
			ir.PaymentCount++
			if ir.FirstPayment.IsZero() || e.PaymentDate.Before(ir.FirstPayment) {
				ir.FirstPayment = e.PaymentDate
			}
			if e.PaymentDate.After(ir.LastPayment) {
				ir.LastPayment = e.PaymentDate
			}

			y := e.PaymentDate.Year()
			yb, ok := years[y]
			if !ok {
				yb = &YearBreakdown{Year: y, Total: decimal.Zero, TaxWithheld: decimal.Zero, Net: decimal.Zero}
				years[y] = yb
			}
			yb.Total = yb.Total.Add(e.TotalValue)
			yb.TaxWithheld = yb.TaxWithheld.Add(e.TaxWithheld)
			yb.Net = yb.Net.Add(e.NetValue())
			yb.PaymentCount++
		}

		for _, yb := range years {
			ir.ByYear = append(ir.ByYear, *yb)
		}
		sort.Slice(ir.ByYear, func(i, j int) bool { return ir.ByYear[i].Year < ir.ByYear[j].Year })

		price, ok := prices[id]
		if ok && price.IsPositive() {
			ir.ApproxYieldPercent = ir.Dividends.Div(price).Mul(hundred)
		} else {
			ir.ApproxYieldPercent = decimal.Zero
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("no current price for %s: approximate yield reported as zero", id))
		}

		report.TotalNet = report.TotalNet.Add(ir.NetIncome)
		report.Instruments = append(report.Instruments, ir)
	}
	return report
}
