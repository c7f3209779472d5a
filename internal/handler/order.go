package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/jsonx"
)

// Order operation names reported to the Recorder.
const (
	opCreate       = "create"
	opAccept       = "accept"
	opDeny         = "deny"
	opCancel       = "cancel"
	opUpdateStatus = "update_status"
	opPurge        = "purge"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{Search: q.Get("q")}
	if s := q.Get("status"); s != "" {
		st, err := order.ParseStatus(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Status = st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, badRequest("invalid limit", nil))
			return
		}
		f.Limit = n
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, orders, encodeOrder)
}

func (h *Handler) pendingOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.Pending(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, orders, encodeOrder)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeCreateOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), actor, req)
	h.rec.RecordOrderOperation(opCreate, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// transition runs an admin transition on the order named in the path.
func (h *Handler) transition(
	op string,
	fn func(ctx context.Context, actor auth.Actor, id int64) (*order.Order, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		o, err := fn(r.Context(), actor, id)
		h.rec.RecordOrderOperation(op, err)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
	}
}

func (h *Handler) acceptOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(opAccept, h.orders.Accept)(w, r)
}

func (h *Handler) denyOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(opDeny, h.orders.Deny)(w, r)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var to order.Status
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		to, err = order.ParseStatus(s)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if to == "" {
		writeError(w, r, badRequest("status is required", nil))
		return
	}
	h.transition(opUpdateStatus, func(ctx context.Context, actor auth.Actor, id int64) (*order.Order, error) {
		return h.orders.UpdateStatus(ctx, actor, id, to)
	})(w, r)
}

// cancelOrder answers 200 with "already_cancelled" set when the order was
// cancelled before; nothing is changed in that case.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.Cancel(r.Context(), actor, id)
	h.rec.RecordOrderOperation(opCancel, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("already_cancelled")
		e.Bool(res.AlreadyCancelled)
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.ObjEnd()
	})
}

// purgeOrders deletes orders placed before the optional "before" query
// parameter, or every order when it is absent.
func (h *Handler) purgeOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	before, err := queryTime(r, "before", false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var cutoff time.Time
	if before != nil {
		cutoff = *before
	}
	n, err := h.orders.Purge(r.Context(), actor, cutoff)
	h.rec.RecordOrderOperation(opPurge, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("deleted")
		e.Int64(n)
		e.ObjEnd()
	})
}

func decodeCreateOrder(r *http.Request) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_name":
			req.Customer.Name, err = d.Str()
		case "customer_email":
			req.Customer.Email, err = d.Str()
		case "customer_phone":
			req.Customer.Phone, err = d.Str()
		case "shipping_address":
			req.Customer.ShippingAddress, err = d.Str()
		case "notes":
			req.Customer.Notes, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeItem(d *jx.Decoder) (order.ItemRequest, error) {
	var it order.ItemRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			it.ProductID, err = d.Int64()
		case "quantity":
			it.Quantity, err = decodeQuantity(d)
		case "unit_price":
			it.UnitPrice, err = jsonx.OptDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("customer_name")
	e.Str(o.Customer.Name)
	e.FieldStart("customer_email")
	e.Str(o.Customer.Email)
	e.FieldStart("customer_phone")
	e.Str(o.Customer.Phone)
	e.FieldStart("shipping_address")
	e.Str(o.Customer.ShippingAddress)
	e.FieldStart("notes")
	e.Str(o.Customer.Notes)
	jsonx.FieldTime(e, "order_date", &o.OrderDate)
	e.FieldStart("status")
	e.Str(string(o.Status))
	jsonx.FieldDecimal(e, "total_amount", &o.TotalAmount)
	jsonx.FieldTime(e, "payment_date", o.PaymentDate)
	jsonx.FieldTime(e, "stock_reserved_at", o.StockReservedAt)
	e.FieldStart("items")
	e.ArrStart()
	for i := range o.Items {
		it := &o.Items[i]
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		jsonx.FieldDecimal(e, "unit_price", &it.UnitPrice)
		jsonx.FieldDecimal(e, "total_price", &it.TotalPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
