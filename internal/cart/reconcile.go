package cart

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Line pairs a requested quantity with the live product row it refers to.
// Product is nil when the row no longer exists.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
	Product   *models.Product
}

// Reconciliation is the outcome of checking cart lines against live products.
type Reconciliation struct {
	Items        []ViewItem
	Removed      []uuid.UUID
	Clamped      map[uuid.UUID]int
	Discontinued int
	OutOfStock   int
	Adjusted     int
	Total        decimal.Decimal
}

// Changed reports whether the stored cart needs to be rewritten.
func (r Reconciliation) Changed() bool {
	return len(r.Removed) > 0 || len(r.Clamped) > 0
}

// Message renders the informational note shown with the cart.
func (r Reconciliation) Message() string {
	parts := make([]string, 0, 3)
	if r.Discontinued > 0 {
		parts = append(parts, fmt.Sprintf("%d %s removed because discontinued.", r.Discontinued, plural(r.Discontinued)))
	}
	if r.OutOfStock > 0 {
		parts = append(parts, fmt.Sprintf("%d %s removed because out of stock.", r.OutOfStock, plural(r.OutOfStock)))
	}
	if r.Adjusted > 0 {
		parts = append(parts, fmt.Sprintf("%d %s quantity adjusted because of limited stock.", r.Adjusted, plural(r.Adjusted)))
	}
	return strings.Join(parts, " ")
}

// Heal applies the removals and clamps to lines, which may have moved on since
// the reconciliation was computed. Lines added in between are kept.
func (r Reconciliation) Heal(lines types.CartLines) types.CartLines {
	removed := make(map[uuid.UUID]struct{}, len(r.Removed))
	for _, id := range r.Removed {
		removed[id] = struct{}{}
	}
	out := make(types.CartLines, 0, len(lines))
	for _, line := range lines {
		if _, ok := removed[line.ProductID]; ok {
			continue
		}
		if limit, ok := r.Clamped[line.ProductID]; ok && line.Quantity > limit {
			line.Quantity = limit
		}
		out = append(out, line)
	}
	return out
}

// View builds the response shape.
func (r Reconciliation) View() *CartView {
	items := r.Items
	if items == nil {
		items = []ViewItem{}
	}
	return &CartView{
		Items:   items,
		Total:   r.Total.StringFixed(2),
		Message: r.Message(),
	}
}

func plural(n int) string {
	if n == 1 {
		return "item"
	}
	return "items"
}

// Reconcile drops discontinued and sold-out lines and clamps quantities that
// exceed stock. It does not touch storage.
func Reconcile(lines []Line) Reconciliation {
	out := Reconciliation{Clamped: map[uuid.UUID]int{}, Total: decimal.Zero}
	for _, line := range lines {
		product := line.Product
		switch {
		case product == nil || !product.IsActive:
			out.Discontinued++
			out.Removed = append(out.Removed, line.ProductID)
			continue
		case product.Stock <= 0:
			out.OutOfStock++
			out.Removed = append(out.Removed, line.ProductID)
			continue
		}

		quantity := line.Quantity
		if quantity > product.Stock {
			quantity = product.Stock
			out.Adjusted++
			out.Clamped[line.ProductID] = quantity
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
		out.Total = out.Total.Add(lineTotal)
		out.Items = append(out.Items, ViewItem{
			ProductID: line.ProductID,
			Name:      product.Name,
			Price:     product.Price.StringFixed(2),
			Quantity:  quantity,
			LineTotal: lineTotal.StringFixed(2),
		})
	}
	return out
}
