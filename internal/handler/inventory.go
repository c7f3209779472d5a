package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/stockroom/internal/domain/inventory"
	"github.com/xenking/stockroom/internal/jsonx"
	"github.com/xenking/stockroom/internal/metrics"
)

func ledgerFilter(r *http.Request) (inventory.Filter, error) {
	var (
		f   inventory.Filter
		err error
	)
	if f.ProductID, err = queryInt64(r, "product_id"); err != nil {
		return f, err
	}
	if f.From, err = queryTime(r, "from", false); err != nil {
		return f, err
	}
	if f.To, err = queryTime(r, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := ledgerFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ps, err := h.inventory.Purchases(r.Context(), actor, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, ps, encodePurchase)
}

func (h *Handler) recordPurchase(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var p inventory.Purchase
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			p.ProductID, err = d.Int64()
		case "quantity":
			p.Quantity, err = decodeQuantity(d)
		case "purchase_price":
			p.PurchasePrice, err = jsonx.Decimal(d)
		case "supplier":
			p.Supplier, err = d.Str()
		case "notes":
			p.Notes, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.inventory.RecordPurchase(r.Context(), actor, &p); err != nil {
		writeError(w, r, err)
		return
	}
	h.rec.RecordStock(metrics.SourcePurchase, p.Quantity)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePurchase(e, &p) })
}

func (h *Handler) listOutgoings(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := ledgerFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	outs, err := h.inventory.Outgoings(r.Context(), actor, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, outs, encodeOutgoing)
}

func (h *Handler) recordOutgoing(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var o inventory.Outgoing
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			o.ProductID, err = d.Int64()
		case "quantity":
			o.Quantity, err = decodeQuantity(d)
		case "outgoing_price":
			o.OutgoingPrice, err = jsonx.OptDecimal(d)
		case "recipient":
			o.Recipient, err = d.Str()
		case "reason":
			var s string
			if s, err = d.Str(); err == nil {
				o.Reason, err = inventory.ParseReason(s)
			}
		case "order_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var id int64
			if id, err = d.Int64(); err == nil {
				o.OrderID = &id
			}
		case "notes":
			o.Notes, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.inventory.RecordOutgoing(r.Context(), actor, &o); err != nil {
		writeError(w, r, err)
		return
	}
	h.rec.RecordStock(metrics.SourceOutgoing, o.Reason.Delta(o.Quantity))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOutgoing(e, &o) })
}

func encodePurchase(e *jx.Encoder, p *inventory.Purchase) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("product_id")
	e.Int64(p.ProductID)
	e.FieldStart("product_name")
	e.Str(p.ProductName)
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	jsonx.FieldDecimal(e, "purchase_price", &p.PurchasePrice)
	jsonx.FieldDecimal(e, "total_amount", &p.TotalAmount)
	e.FieldStart("supplier")
	e.Str(p.Supplier)
	jsonx.FieldTime(e, "purchase_date", &p.PurchaseDate)
	e.FieldStart("notes")
	e.Str(p.Notes)
	e.ObjEnd()
}

func encodeOutgoing(e *jx.Encoder, o *inventory.Outgoing) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("product_id")
	e.Int64(o.ProductID)
	e.FieldStart("product_name")
	e.Str(o.ProductName)
	e.FieldStart("quantity")
	e.Int(o.Quantity)
	jsonx.FieldDecimal(e, "outgoing_price", o.OutgoingPrice)
	jsonx.FieldDecimal(e, "total_amount", o.TotalAmount)
	e.FieldStart("recipient")
	e.Str(o.Recipient)
	e.FieldStart("reason")
	e.Str(string(o.Reason))
	jsonx.FieldTime(e, "outgoing_date", &o.OutgoingDate)
	e.FieldStart("order_id")
	if o.OrderID != nil {
		e.Int64(*o.OrderID)
	} else {
		e.Null()
	}
	e.FieldStart("notes")
	e.Str(o.Notes)
	e.ObjEnd()
}
