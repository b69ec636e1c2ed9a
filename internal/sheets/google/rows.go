package google

import (
	"time"

	"opticash/internal/core"
	"opticash/internal/view"
)

var header = []any{
	"Contribución", "Factura", "Monto factura", "Fecha factura", "Estrategia",
	"Fecha límite", "Monto", "Pendiente", "Estado", "Pagado en", "Optimista",
}

// viewRows lays out a view as a header, one row per share and a totals row.
func viewRows(v view.View) [][]any {
	rows := make([][]any, 0, len(v.Shares)+2)
	rows = append(rows, header)
	for _, s := range v.Shares {
		var billDesc, billAmount, billDate any = "", "", ""
		if s.Bill != nil {
			billDesc = s.Bill.Description
			billAmount = amount(s.Bill.Amount)
			billDate = date(s.Bill.Date)
		}
		paidAt := ""
		if s.PaidAt != nil {
			paidAt = s.PaidAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []any{
			s.ContributionDescription,
			billDesc,
			billAmount,
			billDate,
			string(s.Strategy),
			date(s.DueDate),
			amount(s.Original),
			amount(s.Remaining),
			statusLabel(s.Status),
			paidAt,
			s.Optimistic,
		})
	}
	rows = append(rows, []any{
		"TOTAL", "", "", "", "", "",
		amount(v.TotalPaid.Add(v.TotalPending)),
		amount(v.TotalPending),
		"", "", "",
	})
	return rows
}

func amount(m core.Money) float64 {
	return m.Decimal().InexactFloat64()
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func statusLabel(s core.Status) string {
	if s.IsPaid() {
		return "PAGADO"
	}
	return "PENDIENTE"
}
