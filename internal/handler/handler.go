// Package handler exposes the catalog, ledger and order services over
// HTTP. Routes are registered on a net/http ServeMux and bodies are read and
// written with go-faster/jx.
package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/dashboard"
	"github.com/xenking/stockroom/internal/domain/inventory"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// Products is the catalog service.
type Products interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, error)
	Get(ctx context.Context, id int64) (*product.Product, error)
	LowStock(ctx context.Context) ([]product.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, actor auth.Actor, p *product.Product) error
	Update(ctx context.Context, actor auth.Actor, p *product.Product) error
	Delete(ctx context.Context, actor auth.Actor, id int64) error
}

// Inventory is the purchase and outgoing ledger service.
type Inventory interface {
	RecordPurchase(ctx context.Context, actor auth.Actor, p *inventory.Purchase) error
	RecordOutgoing(ctx context.Context, actor auth.Actor, o *inventory.Outgoing) error
	Purchases(ctx context.Context, actor auth.Actor, f inventory.Filter) ([]inventory.Purchase, error)
	Outgoings(ctx context.Context, actor auth.Actor, f inventory.Filter) ([]inventory.Outgoing, error)
}

// Orders is the order lifecycle service.
type Orders interface {
	Get(ctx context.Context, id int64) (*order.Order, error)
	List(ctx context.Context, f order.Filter) ([]order.Order, error)
	Pending(ctx context.Context, actor auth.Actor) ([]order.Order, error)
	Create(ctx context.Context, actor auth.Actor, req order.CreateRequest) (*order.Order, error)
	Accept(ctx context.Context, actor auth.Actor, id int64) (*order.Order, error)
	Deny(ctx context.Context, actor auth.Actor, id int64) (*order.Order, error)
	Cancel(ctx context.Context, actor auth.Actor, id int64) (*order.CancelResult, error)
	UpdateStatus(ctx context.Context, actor auth.Actor, id int64, to order.Status) (*order.Order, error)
	Purge(ctx context.Context, actor auth.Actor, before time.Time) (int64, error)
}

// Dashboard is the admin summary service.
type Dashboard interface {
	Summary(ctx context.Context, actor auth.Actor) (*dashboard.Summary, error)
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	RecordOrderOperation(operation string, err error)
	RecordStock(source string, delta int)
}

type nopRecorder struct{}

func (nopRecorder) RecordOrderOperation(string, error) {}
func (nopRecorder) RecordStock(string, int)            {}

// Handler serves the /api routes.
type Handler struct {
	products  Products
	inventory Inventory
	orders    Orders
	dashboard Dashboard
	rec       Recorder
}

// New creates a Handler. A nil recorder discards metrics.
func New(products Products, inv Inventory, orders Orders, dash Dashboard, rec Recorder) *Handler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Handler{products: products, inventory: inv, orders: orders, dashboard: dash, rec: rec}
}

// Register adds every API route to mux behind authn.
func (h *Handler) Register(mux *http.ServeMux, authn httpmiddleware.Middleware) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(fn))
	}

	route("GET /api/products", h.listProducts)
	route("GET /api/products/low-stock", h.lowStock)
	route("GET /api/products/categories", h.categories)
	route("GET /api/products/{id}", h.getProduct)
	route("POST /api/products", h.createProduct)
	route("PUT /api/products/{id}", h.updateProduct)
	route("DELETE /api/products/{id}", h.deleteProduct)

	route("GET /api/purchases", h.listPurchases)
	route("POST /api/purchases", h.recordPurchase)
	route("GET /api/outgoings", h.listOutgoings)
	route("POST /api/outgoings", h.recordOutgoing)

	route("GET /api/orders", h.listOrders)
	route("GET /api/orders/pending", h.pendingOrders)
	route("GET /api/orders/{id}", h.getOrder)
	route("POST /api/orders", h.createOrder)
	route("POST /api/orders/{id}/accept", h.acceptOrder)
	route("POST /api/orders/{id}/deny", h.denyOrder)
	route("POST /api/orders/{id}/cancel", h.cancelOrder)
	route("PUT /api/orders/{id}/status", h.updateOrderStatus)
	route("DELETE /api/orders", h.purgeOrders)

	route("GET /api/dashboard", h.summary)
}

// badRequestError marks malformed input that never reached a service.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &badRequestError{msg: msg, err: err}
}

func actorFrom(r *http.Request) (auth.Actor, error) {
	a, ok := auth.ActorFrom(r.Context())
	if !ok {
		return auth.Actor{}, auth.ErrUnauthenticated
	}
	return a, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id "+strconv.Quote(raw), nil)
	}
	return id, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, badRequest("invalid "+key, nil)
	}
	return v, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates. A plain "to" date
// covers the whole day.
func queryTime(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, badRequest("invalid "+key, err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// decodeQuantity reads a quantity that must fit the int4 stock columns.
func decodeQuantity(d *jx.Decoder) (int, error) {
	v, err := d.Int32()
	return int(v), err
}

// decodeWith reads the request body and hands it to decode. Decoding
// failures are reported as bad requests.
func decodeWith(r *http.Request, decode func(d *jx.Decoder) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(body) > maxBodyBytes {
		return badRequest("request body too large", nil)
	}
	if err := decode(jx.DecodeBytes(body)); err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			return err
		}
		return badRequest("invalid request body", err)
	}
	return nil
}

// decodeBody reads the body as a JSON object, passing each field to fn.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	return decodeWith(r, func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			return fn(d, string(key))
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeArray[T any](w http.ResponseWriter, items []T, encode func(e *jx.Encoder, v *T)) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range items {
			encode(e, &items[i])
		}
		e.ArrEnd()
	})
}
