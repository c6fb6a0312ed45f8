package cart

import (
	"maps"

	"github.com/shopspring/decimal"
)

// Context builds the data a promotion rule is evaluated against:
//
//	subtotal    running net subtotal
//	qty         total units
//	lineCount   number of lines
//	lines       [{productId, name, category, qty, unitPrice, lineTotal, netTotal}]
//	products    {productId: {qty, lineTotal, netTotal}}
//	categories  {category: qty}
//
// Numbers are float64. Keys of extra are added too; the computed keys win
// on collision.
func Context(lines []LineItem, extra map[string]any) map[string]any {
	ctx := make(map[string]any, 6+len(extra))
	maps.Copy(ctx, extra)

	list := make([]any, 0, len(lines))
	products := make(map[string]any, len(lines))
	categories := make(map[string]any)
	for _, l := range lines {
		list = append(list, map[string]any{
			"productId": l.ProductID,
			"name":      l.Name,
			"category":  l.Category,
			"qty":       float64(l.Qty),
			"unitPrice": f64(l.UnitPrice),
			"lineTotal": f64(l.LineTotal),
			"netTotal":  f64(l.NetTotal),
		})

		p, _ := products[l.ProductID].(map[string]any)
		if p == nil {
			p = map[string]any{"qty": 0.0, "lineTotal": 0.0, "netTotal": 0.0}
			products[l.ProductID] = p
		}
		p["qty"] = p["qty"].(float64) + float64(l.Qty)
		p["lineTotal"] = p["lineTotal"].(float64) + f64(l.LineTotal)
		p["netTotal"] = p["netTotal"].(float64) + f64(l.NetTotal)

		if l.Category != "" {
			q, _ := categories[l.Category].(float64)
			categories[l.Category] = q + float64(l.Qty)
		}
	}

	ctx["subtotal"] = f64(NetSubtotal(lines))
	ctx["qty"] = float64(TotalQty(lines))
	ctx["lineCount"] = float64(len(lines))
	ctx["lines"] = list
	ctx["products"] = products
	ctx["categories"] = categories
	return ctx
}

func f64(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
