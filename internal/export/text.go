package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Simplici0/cotizaciones/internal/pricing"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

// noValue stands in for amounts that cannot be computed.
const noValue = "-"

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func money(v float64) string {
	if !finite(v) {
		return noValue
	}
	return humanize.FormatFloat("#,###.##", v)
}

func quantity(v float64) string {
	if !finite(v) {
		return noValue
	}
	return humanize.Commaf(v)
}

// Text is a plain-text summary of q, suitable for pasting into an email.
func Text(q quotation.Quotation, agg pricing.Aggregate, s pricing.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Cotización %s: %s\n", q.QuoteNumber, q.Title)
	fmt.Fprintf(&b, "Estado: %s\n", q.Status)
	if q.UpdatedBy != "" {
		fmt.Fprintf(&b, "Actualizada por: %s\n", q.UpdatedBy)
	}
	fmt.Fprintf(&b, "Productos: %d\n", s.Count)

	for i, p := range q.Products {
		name := p.Vendor
		if p.Name != "" {
			name = p.Name + " (" + p.Vendor + ")"
		}
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, name)
		fmt.Fprintf(&b, "   Cantidad: %s %s\n", quantity(p.AnnualQuantity), uom(p))
		fmt.Fprintf(&b, "   Costo EA: %s | Price EA: %s | Margen: %s%% | Margen extra: %s\n",
			money(p.CostPerUnit), money(p.UnitPrice), money(p.MarginPercent), p.ExtraMargin)
		fmt.Fprintf(&b, "   Total: %s %s\n", money(p.ExtendedFinalPrice), p.Currency)
	}

	b.WriteString("\nTotales:\n")
	fmt.Fprintf(&b, "Cantidad total: %s\n", quantity(s.TotalQuantity))
	fmt.Fprintf(&b, "Margen total: %s\n", money(agg.TotalMargin))
	fmt.Fprintf(&b, "Precio neto total: %s\n", money(agg.TotalNetPrice))
	fmt.Fprintf(&b, "SIMA: %s\n", money(agg.ScaledSIMATotal))
	fmt.Fprintf(&b, "Margen extra acumulado: %s%%\n", money(agg.AvgExtraMarginPercent))
	fmt.Fprintf(&b, "Suma precio final EA: %s\n", money(agg.FinalPriceSum))
	fmt.Fprintf(&b, "Total: %s MXN\n", money(s.TotalExtendedFinalPrice))

	return b.String()
}
