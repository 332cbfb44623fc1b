package pricing

// ExtraMargin marks whether the flat extra markup applies to a line item.
type ExtraMargin string

const (
	ExtraMarginYes ExtraMargin = "SI"
	ExtraMarginNo  ExtraMargin = "NO"
)

const (
	extraMarginFactor = 1.10
	simaRate          = 0.10
)

// Applies reports whether the extra markup is on. Anything other than SI counts as NO.
func (e ExtraMargin) Applies() bool {
	return e == ExtraMarginYes
}

// Valid reports whether e is one of the two known values.
func (e ExtraMargin) Valid() bool {
	return e == ExtraMarginYes || e == ExtraMarginNo
}

// LineItem is one priced product row. The first five fields are inputs; the
// rest are derived by Derive and must never be treated as authoritative.
type LineItem struct {
	CostPerUnit    float64     `json:"costEA"`
	AnnualQuantity float64     `json:"annualQty"`
	Freight        float64     `json:"freight"`
	MarginPercent  float64     `json:"margin"`
	ExtraMargin    ExtraMargin `json:"extraMargin"`

	ExtendedCost             float64 `json:"extPrecost"`
	UnitPrice                float64 `json:"priceEA"`
	ExtendedPriceBeforeExtra float64 `json:"extPriceSIMA"`
	FinalUnitPrice           float64 `json:"finalPriceEA"`
	ExtendedFinalPrice       float64 `json:"extPriceMXN"`
}

// Derive returns a copy of item with every derived field recomputed from the
// inputs. Out-of-range inputs are not rejected: a 100% margin yields a
// non-finite unit price.
func Derive(item LineItem) LineItem {
	out := LineItem{
		CostPerUnit:    item.CostPerUnit,
		AnnualQuantity: item.AnnualQuantity,
		Freight:        item.Freight,
		MarginPercent:  item.MarginPercent,
		ExtraMargin:    item.ExtraMargin,
	}

	out.ExtendedCost = item.CostPerUnit * item.AnnualQuantity

	if item.AnnualQuantity > 0 {
		out.UnitPrice = item.CostPerUnit/(1-item.MarginPercent/100) + item.Freight/item.AnnualQuantity
	}

	out.ExtendedPriceBeforeExtra = out.UnitPrice * item.AnnualQuantity

	out.FinalUnitPrice = out.UnitPrice
	if item.ExtraMargin.Applies() {
		out.FinalUnitPrice = out.UnitPrice * extraMarginFactor
	}

	out.ExtendedFinalPrice = out.FinalUnitPrice * item.AnnualQuantity

	return out
}

// DeriveAll derives every item and returns a new slice.
func DeriveAll(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = Derive(item)
	}
	return out
}

// Aggregate is the cross-item rollup shown under the product table.
type Aggregate struct {
	TotalMargin   float64 `json:"totalMargin"`
	TotalNetPrice float64 `json:"totalNetPrice"`
	// ScaledSIMATotal is 10% of the summed extended final prices.
	ScaledSIMATotal float64 `json:"scaledSIMATotal"`
	// AvgExtraMarginPercent is a plain sum of per-item cost/price ratios,
	// not a mean.
	AvgExtraMarginPercent float64 `json:"avgExtraMarginPercent"`
	FinalPriceSum         float64 `json:"finalPriceSum"`
}

// Rollup folds already-derived items into an Aggregate. An empty slice yields
// all zeros. Items with a zero extended price make AvgExtraMarginPercent
// non-finite.
func Rollup(items []LineItem) Aggregate {
	var agg Aggregate
	for _, item := range items {
		agg.TotalMargin += item.ExtendedPriceBeforeExtra - item.ExtendedCost
		agg.TotalNetPrice += item.ExtendedFinalPrice - item.ExtendedCost
		agg.ScaledSIMATotal += item.ExtendedFinalPrice * simaRate
		agg.AvgExtraMarginPercent += item.ExtendedCost / item.ExtendedPriceBeforeExtra * 100

		// Built from UnitPrice, not FinalUnitPrice.
		factor := 1.0
		if item.ExtraMargin.Applies() {
			factor = extraMarginFactor
		}
		agg.FinalPriceSum += item.UnitPrice * factor
	}
	return agg
}

// Summary holds the totals and per-item means used by the detail view and
// the spreadsheet export.
type Summary struct {
	Count                   int     `json:"count"`
	TotalQuantity           float64 `json:"totalQuantity"`
	TotalExtendedFinalPrice float64 `json:"totalExtendedFinalPrice"`
	AvgCostPerUnit          float64 `json:"avgCostPerUnit"`
	AvgUnitPrice            float64 `json:"avgUnitPrice"`
	AvgMarginPercent        float64 `json:"avgMarginPercent"`
}

// Summarize sums quantities and extended final prices and averages cost,
// price and margin over len(items). With no items the averages are NaN.
func Summarize(items []LineItem) Summary {
	var (
		s                         Summary
		sumCost, sumPrice, sumPct float64
	)
	for _, item := range items {
		s.TotalQuantity += item.AnnualQuantity
		s.TotalExtendedFinalPrice += item.ExtendedFinalPrice
		sumCost += item.CostPerUnit
		sumPrice += item.UnitPrice
		sumPct += item.MarginPercent
	}

	s.Count = len(items)
	n := float64(len(items))
	s.AvgCostPerUnit = sumCost / n
	s.AvgUnitPrice = sumPrice / n
	s.AvgMarginPercent = sumPct / n

	return s
}
