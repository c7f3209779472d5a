package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/stockroom/internal/domain/dashboard"
	"github.com/xenking/stockroom/internal/jsonx"
)

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := h.dashboard.Summary(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSummary(e, sum) })
}

func encodeSummary(e *jx.Encoder, s *dashboard.Summary) {
	t := &s.Totals
	e.ObjStart()
	e.FieldStart("totals")
	e.ObjStart()
	e.FieldStart("products")
	e.Int64(t.Products)
	e.FieldStart("orders")
	e.Int64(t.Orders)
	e.FieldStart("pending_orders")
	e.Int64(t.PendingOrders)
	e.FieldStart("low_stock_products")
	e.Int64(t.LowStockProducts)
	e.FieldStart("purchases")
	e.Int64(t.Purchases)
	e.FieldStart("outgoings")
	e.Int64(t.Outgoings)
	jsonx.FieldDecimal(e, "inventory_value", &t.InventoryValue)
	e.ObjEnd()

	e.FieldStart("recent_orders")
	e.ArrStart()
	for i := range s.RecentOrders {
		encodeOrder(e, &s.RecentOrders[i])
	}
	e.ArrEnd()

	e.FieldStart("low_stock")
	e.ArrStart()
	for i := range s.LowStock {
		encodeProduct(e, &s.LowStock[i])
	}
	e.ArrEnd()

	e.FieldStart("activity")
	e.ArrStart()
	for _, a := range s.Activity {
		e.ObjStart()
		e.FieldStart("kind")
		e.Str(string(a.Kind))
		jsonx.FieldTime(e, "at", &a.At)
		e.FieldStart("description")
		e.Str(a.Description())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
