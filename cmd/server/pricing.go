package main

import (
	"net/http"

	"github.com/Simplici0/cotizaciones/internal/pricing"
)

type lineItemResponse struct {
	CostPerUnit    number              `json:"costEA"`
	AnnualQuantity number              `json:"annualQty"`
	Freight        number              `json:"freight"`
	MarginPercent  number              `json:"margin"`
	ExtraMargin    pricing.ExtraMargin `json:"extraMargin"`

	ExtendedCost             number `json:"extPrecost"`
	UnitPrice                number `json:"priceEA"`
	ExtendedPriceBeforeExtra number `json:"extPriceSIMA"`
	FinalUnitPrice           number `json:"finalPriceEA"`
	ExtendedFinalPrice       number `json:"extPriceMXN"`
}

func newLineItemResponse(it pricing.LineItem) lineItemResponse {
	return lineItemResponse{
		CostPerUnit:              number(it.CostPerUnit),
		AnnualQuantity:           number(it.AnnualQuantity),
		Freight:                  number(it.Freight),
		MarginPercent:            number(it.MarginPercent),
		ExtraMargin:              it.ExtraMargin,
		ExtendedCost:             number(it.ExtendedCost),
		UnitPrice:                number(it.UnitPrice),
		ExtendedPriceBeforeExtra: number(it.ExtendedPriceBeforeExtra),
		FinalUnitPrice:           number(it.FinalUnitPrice),
		ExtendedFinalPrice:       number(it.ExtendedFinalPrice),
	}
}

type aggregateResponse struct {
	TotalMargin           number `json:"totalMargin"`
	TotalNetPrice         number `json:"totalNetPrice"`
	ScaledSIMATotal       number `json:"scaledSIMATotal"`
	AvgExtraMarginPercent number `json:"avgExtraMarginPercent"`
	FinalPriceSum         number `json:"finalPriceSum"`
}

func newAggregateResponse(a pricing.Aggregate) aggregateResponse {
	return aggregateResponse{
		TotalMargin:           number(a.TotalMargin),
		TotalNetPrice:         number(a.TotalNetPrice),
		ScaledSIMATotal:       number(a.ScaledSIMATotal),
		AvgExtraMarginPercent: number(a.AvgExtraMarginPercent),
		FinalPriceSum:         number(a.FinalPriceSum),
	}
}

type summaryResponse struct {
	Count                   int    `json:"count"`
	TotalQuantity           number `json:"totalQuantity"`
	TotalExtendedFinalPrice number `json:"totalExtendedFinalPrice"`
	AvgCostPerUnit          number `json:"avgCostPerUnit"`
	AvgUnitPrice            number `json:"avgUnitPrice"`
	AvgMarginPercent        number `json:"avgMarginPercent"`
}

func newSummaryResponse(s pricing.Summary) summaryResponse {
	return summaryResponse{
		Count:                   s.Count,
		TotalQuantity:           number(s.TotalQuantity),
		TotalExtendedFinalPrice: number(s.TotalExtendedFinalPrice),
		AvgCostPerUnit:          number(s.AvgCostPerUnit),
		AvgUnitPrice:            number(s.AvgUnitPrice),
		AvgMarginPercent:        number(s.AvgMarginPercent),
	}
}

type lineItemsRequest struct {
	Items []pricing.LineItem `json:"items"`
}

// handleDerive recomputes the derived fields of every posted item. The
// engine runs unguarded: a 100% margin comes back as null prices.
func handleDerive(w http.ResponseWriter, r *http.Request) {
	var req lineItemsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	derived := pricing.DeriveAll(req.Items)
	items := make([]lineItemResponse, len(derived))
	for i, it := range derived {
		items[i] = newLineItemResponse(it)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleAggregate rolls up already derived items as the detail view shows them.
func handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req lineItemsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"aggregate": newAggregateResponse(pricing.Rollup(req.Items)),
		"summary":   newSummaryResponse(pricing.Summarize(req.Items)),
	})
}
