package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/dashboard"
	"github.com/xenking/stockroom/internal/domain/inventory"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/pkg/httpmiddleware"
)

var (
	admin = auth.Actor{Role: auth.RoleAdmin, Email: "admin@example.com", Name: "Admin"}
	alice = auth.Actor{Role: auth.RoleUser, Email: "alice@example.com", Name: "Alice"}

	placedAt = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
)

// --- fakes ---

type fakeProducts struct {
	byID    map[int64]product.Product
	created *product.Product
	err     error
	filter  product.Filter
}

func (f *fakeProducts) List(_ context.Context, flt product.Filter) ([]product.Product, error) {
	f.filter = flt
	var out []product.Product
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, f.err
}

func (f *fakeProducts) Get(_ context.Context, id int64) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, &product.NotFoundError{ProductID: id}
	}
	return &p, nil
}

func (f *fakeProducts) LowStock(context.Context) ([]product.Product, error) { return nil, f.err }

func (f *fakeProducts) Categories(context.Context) ([]string, error) {
	return []string{"Furniture", "Lighting"}, f.err
}

func (f *fakeProducts) Create(_ context.Context, actor auth.Actor, p *product.Product) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	p.ID = 42
	f.created = p
	return nil
}

func (f *fakeProducts) Update(_ context.Context, actor auth.Actor, p *product.Product) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if _, ok := f.byID[p.ID]; !ok {
		return &product.NotFoundError{ProductID: p.ID}
	}
	return f.err
}

func (f *fakeProducts) Delete(_ context.Context, actor auth.Actor, id int64) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	return f.err
}

type fakeInventory struct {
	filter   inventory.Filter
	outgoing *inventory.Outgoing
	err      error
}

func (f *fakeInventory) RecordPurchase(_ context.Context, _ auth.Actor, p *inventory.Purchase) error {
	if f.err != nil {
		return f.err
	}
	p.ID = 1
	p.TotalAmount = p.PurchasePrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
	return nil
}

func (f *fakeInventory) RecordOutgoing(_ context.Context, _ auth.Actor, o *inventory.Outgoing) error {
	if f.err != nil {
		return f.err
	}
	if o.Reason == "" {
		o.Reason = inventory.ReasonSale
	}
	f.outgoing = o
	return nil
}

func (f *fakeInventory) Purchases(_ context.Context, actor auth.Actor, flt inventory.Filter) ([]inventory.Purchase, error) {
	f.filter = flt
	return nil, actor.RequireAdmin()
}

func (f *fakeInventory) Outgoings(_ context.Context, actor auth.Actor, flt inventory.Filter) ([]inventory.Outgoing, error) {
	f.filter = flt
	return nil, actor.RequireAdmin()
}

type fakeOrders struct {
	order   *order.Order
	created order.CreateRequest
	status  order.Status
	filter  order.Filter
	before  time.Time
	err     error
	already bool
}

func (f *fakeOrders) Get(_ context.Context, id int64) (*order.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, order.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeOrders) List(_ context.Context, flt order.Filter) ([]order.Order, error) {
	f.filter = flt
	return []order.Order{*f.order}, f.err
}

func (f *fakeOrders) Pending(_ context.Context, actor auth.Actor) ([]order.Order, error) {
	return nil, actor.RequireAdmin()
}

func (f *fakeOrders) Create(_ context.Context, _ auth.Actor, req order.CreateRequest) (*order.Order, error) {
	f.created = req
	return f.order, f.err
}

func (f *fakeOrders) Accept(context.Context, auth.Actor, int64) (*order.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) Deny(context.Context, auth.Actor, int64) (*order.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) Cancel(context.Context, auth.Actor, int64) (*order.CancelResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &order.CancelResult{Order: f.order, AlreadyCancelled: f.already}, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, _ auth.Actor, _ int64, to order.Status) (*order.Order, error) {
	f.status = to
	return f.order, f.err
}

func (f *fakeOrders) Purge(_ context.Context, actor auth.Actor, before time.Time) (int64, error) {
	if err := actor.RequireAdmin(); err != nil {
		return 0, err
	}
	f.before = before
	return 3, f.err
}

type fakeDashboard struct{}

func (fakeDashboard) Summary(_ context.Context, actor auth.Actor) (*dashboard.Summary, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return &dashboard.Summary{
		Totals: dashboard.Totals{
			Products: 1, Orders: 1, PendingOrders: 1, LowStockProducts: 1, Purchases: 4, Outgoings: 2,
			InventoryValue: decimal.RequireFromString("241"),
		},
		RecentOrders: []order.Order{{ID: 5, Number: "ORD-20240315-ABCDEF12", OrderDate: placedAt, Status: order.StatusPending}},
		Activity: []dashboard.Activity{
			{Kind: dashboard.KindOrder, At: placedAt, OrderNumber: "ORD-20240315-ABCDEF12", CustomerName: "Alice"},
			{Kind: dashboard.KindPurchase, At: placedAt.Add(-time.Hour), ProductName: "Desk", Quantity: 4},
		},
	}, nil
}

type recorder struct {
	ops   []string
	stock map[string]int
}

func (r *recorder) RecordOrderOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ops = append(r.ops, op+":"+result)
}

func (r *recorder) RecordStock(source string, delta int) {
	if r.stock == nil {
		r.stock = map[string]int{}
	}
	r.stock[source] += delta
}

type tokens map[string]auth.Actor

func (t tokens) Verify(token string) (auth.Actor, error) {
	a, ok := t[token]
	if !ok {
		return auth.Actor{}, auth.ErrUnauthenticated
	}
	return a, nil
}

// --- helpers ---

type testServer struct {
	products  *fakeProducts
	inventory *fakeInventory
	orders    *fakeOrders
	rec       *recorder
	h         http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		products: &fakeProducts{byID: map[int64]product.Product{
			7: {
				ID: 7, Name: "Desk", SKU: "D-1", Category: "Furniture", QuantityInStock: 2,
				CostPrice: decimal.RequireFromString("80"), SellingPrice: decimal.RequireFromString("120.5"),
				MinimumStockLevel: intPtr(3), CreatedAt: placedAt,
			},
		}},
		inventory: &fakeInventory{},
		orders:    &fakeOrders{order: sampleOrder()},
		rec:       &recorder{},
	}
	mux := http.NewServeMux()
	New(ts.products, ts.inventory, ts.orders, fakeDashboard{}, ts.rec).
		Register(mux, httpmiddleware.Authenticate(tokens{"admin": admin, "alice": alice}))
	ts.h = httpmiddleware.Wrap(mux)
	return ts
}

func (ts *testServer) do(t *testing.T, token, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, req)
	return w
}

func intPtr(v int) *int { return &v }

func sampleOrder() *order.Order {
	return &order.Order{
		ID:     5,
		Number: "ORD-20240315-ABCDEF12",
		Customer: order.Customer{
			Name:  "Alice",
			Email: "alice@example.com",
		},
		OrderDate:   placedAt,
		Status:      order.StatusPending,
		TotalAmount: decimal.RequireFromString("241"),
		Items: []order.Item{{
			ID: 9, OrderID: 5, ProductID: 7, Quantity: 2,
			UnitPrice:  decimal.RequireFromString("120.5"),
			TotalPrice: decimal.RequireFromString("241"),
		}},
	}
}

// --- tests ---

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: badRequest("invalid id", nil), want: http.StatusBadRequest},
		{err: &product.ValidationError{Field: "name", Reason: "is required"}, want: http.StatusBadRequest},
		{err: order.ErrEmptyItems, want: http.StatusBadRequest},
		{err: &order.InvalidItemError{Index: 0, Reason: "quantity"}, want: http.StatusBadRequest},
		{err: &order.InvalidStatusError{Value: "Lost"}, want: http.StatusBadRequest},
		{err: auth.ErrUnauthenticated, want: http.StatusUnauthorized},
		{err: auth.ErrForbidden, want: http.StatusForbidden},
		{err: errors.Wrap(&product.NotFoundError{ProductID: 1}, "create order"), want: http.StatusNotFound},
		{err: order.ErrNotFound, want: http.StatusNotFound},
		{err: &order.InvalidTransitionError{OrderID: 1, Operation: "accept", From: order.StatusPaid}, want: http.StatusConflict},
		{err: errors.Wrap(order.ErrConflict, "order 1 is no longer Pending"), want: http.StatusConflict},
		{err: &product.InUseError{ProductID: 1, OrderItems: 2}, want: http.StatusConflict},
		{err: product.ErrDuplicateSKU, want: http.StatusConflict},
		{err: &order.StockInsufficientError{ProductID: 1, Requested: 6, Available: 5}, want: http.StatusUnprocessableEntity},
		{err: &inventory.InsufficientStockError{ProductID: 1, Requested: 3}, want: http.StatusUnprocessableEntity},
		{err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestRequiresToken(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "", http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, "forged", http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetProduct(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "alice", http.MethodGet, "/api/products/7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"id": 7, "name": "Desk", "description": "", "sku": "D-1", "category": "Furniture", "supplier": "",
		"quantity_in_stock": 2, "cost_price": "80.00", "selling_price": "120.50",
		"minimum_stock_level": 3, "low_stock": true,
		"created_at": "2024-03-15T09:30:00Z", "last_updated": null
	}`, w.Body.String())

	w = ts.do(t, "alice", http.MethodGet, "/api/products/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"message":"product 99 not found"}`, w.Body.String())

	w = ts.do(t, "alice", http.MethodGet, "/api/products/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProducts(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "alice", http.MethodGet, "/api/products?q=desk&category=Furniture", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, product.Filter{Search: "desk", Category: "Furniture"}, ts.products.filter)
	assert.Contains(t, w.Body.String(), `"sku":"D-1"`)

	w = ts.do(t, "alice", http.MethodGet, "/api/products/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["Furniture","Lighting"]`, w.Body.String())
}

func TestCreateProduct(t *testing.T) {
	const body = `{"name":"Lamp","sku":"L-1","category":"Lighting","quantity_in_stock":4,
		"cost_price":"3.5","selling_price":9.99,"minimum_stock_level":null}`

	tests := []struct {
		name  string
		token string
		body  string
		want  int
	}{
		{name: "admin", token: "admin", body: body, want: http.StatusCreated},
		{name: "user forbidden", token: "alice", body: body, want: http.StatusForbidden},
		{name: "malformed", token: "admin", body: `{"name":`, want: http.StatusBadRequest},
		{name: "wrong type", token: "admin", body: `{"quantity_in_stock":"four"}`, want: http.StatusBadRequest},
		{name: "missing category", token: "admin", body: `{"name":"Lamp","sku":"L-1"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			w := ts.do(t, tt.token, http.MethodPost, "/api/products", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want != http.StatusCreated {
				return
			}
			require.NotNil(t, ts.products.created)
			assert.Equal(t, "Lamp", ts.products.created.Name)
			assert.True(t, decimal.RequireFromString("9.99").Equal(ts.products.created.SellingPrice))
			assert.Contains(t, w.Body.String(), `"id":42`)
		})
	}
}

func TestUpdateDeleteProduct(t *testing.T) {
	ts := newTestServer()
	const body = `{"name":"Desk","sku":"D-1","category":"Furniture","cost_price":"80","selling_price":"130"}`

	assert.Equal(t, http.StatusOK, ts.do(t, "admin", http.MethodPut, "/api/products/7", body).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "admin", http.MethodPut, "/api/products/8", body).Code)

	ts.products.err = &product.InUseError{ProductID: 7, OrderItems: 1}
	w := ts.do(t, "admin", http.MethodDelete, "/api/products/7", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.products.err = nil
	w = ts.do(t, "admin", http.MethodDelete, "/api/products/7", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCreateOrder(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "alice", http.MethodPost, "/api/orders", `{
		"customer_phone": "555-0100",
		"shipping_address": "1 Main St",
		"items": [
			{"product_id": 7, "quantity": 2},
			{"product_id": 8, "quantity": 1, "unit_price": "4.25"}
		]
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req := ts.orders.created
	assert.Equal(t, "555-0100", req.Customer.Phone)
	require.Len(t, req.Items, 2)
	assert.Nil(t, req.Items[0].UnitPrice)
	require.NotNil(t, req.Items[1].UnitPrice)
	assert.Equal(t, "4.25", req.Items[1].UnitPrice.String())
	assert.Equal(t, []string{"create:ok"}, ts.rec.ops)

	assert.JSONEq(t, `{
		"id": 5, "order_number": "ORD-20240315-ABCDEF12",
		"customer_name": "Alice", "customer_email": "alice@example.com", "customer_phone": "",
		"shipping_address": "", "notes": "",
		"order_date": "2024-03-15T09:30:00Z", "status": "Pending", "total_amount": "241.00",
		"payment_date": null, "stock_reserved_at": null,
		"items": [{"id": 9, "product_id": 7, "quantity": 2, "unit_price": "120.50", "total_price": "241.00"}]
	}`, w.Body.String())
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "empty items", body: `{"items":[]}`, err: order.ErrEmptyItems, want: http.StatusBadRequest},
		{name: "bad item", body: `{"items":[{"product_id":"seven"}]}`, want: http.StatusBadRequest},
		{name: "quantity above int4", body: `{"items":[{"product_id":7,"quantity":3000000000}]}`, want: http.StatusBadRequest},
		{name: "missing product", body: `{"items":[{"product_id":70,"quantity":1}]}`, err: &product.NotFoundError{ProductID: 70}, want: http.StatusNotFound},
		{name: "storage failure", body: `{"items":[{"product_id":7,"quantity":1}]}`, err: errors.New("conn closed"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.orders.err = tt.err
			w := ts.do(t, "alice", http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
			}
		})
	}
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
		op     string
	}{
		{name: "accept", target: "/api/orders/5/accept", want: http.StatusOK, op: "accept:ok"},
		{
			name: "accept short", target: "/api/orders/5/accept", want: http.StatusUnprocessableEntity, op: "accept:error",
			err: &order.StockInsufficientError{ProductID: 7, ProductName: "Desk", Requested: 6, Available: 5},
		},
		{
			name: "accept twice", target: "/api/orders/5/accept", want: http.StatusConflict, op: "accept:error",
			err: &order.InvalidTransitionError{OrderID: 5, Operation: "accept", From: order.StatusPaid},
		},
		{name: "deny", target: "/api/orders/5/deny", want: http.StatusOK, op: "deny:ok"},
		{name: "deny as user", target: "/api/orders/5/deny", err: auth.ErrForbidden, want: http.StatusForbidden, op: "deny:error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.orders.err = tt.err
			w := ts.do(t, "admin", http.MethodPost, tt.target, "")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, []string{tt.op}, ts.rec.ops)
		})
	}
}

func TestStockInsufficientMessage(t *testing.T) {
	ts := newTestServer()
	ts.orders.err = &order.StockInsufficientError{ProductID: 7, ProductName: "Desk", Requested: 6, Available: 5}

	w := ts.do(t, "admin", http.MethodPost, "/api/orders/5/accept", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Desk")
	assert.Contains(t, w.Body.String(), "requested 6, available 5")
}

func TestCancelOrder(t *testing.T) {
	ts := newTestServer()
	ts.orders.already = true
	ts.orders.order.Status = order.StatusCancelled

	w := ts.do(t, "alice", http.MethodPost, "/api/orders/5/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"already_cancelled":true`)
	assert.Contains(t, w.Body.String(), `"status":"Cancelled"`)
	assert.Equal(t, []string{"cancel:ok"}, ts.rec.ops)
}

func TestUpdateOrderStatus(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "admin", http.MethodPut, "/api/orders/5/status", `{"status":"processing"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.StatusProcessing, ts.orders.status)

	w = ts.do(t, "admin", http.MethodPut, "/api/orders/5/status", `{"status":"Lost"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, "admin", http.MethodPut, "/api/orders/5/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []string{"update_status:ok"}, ts.rec.ops)
}

func TestListOrders(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "alice", http.MethodGet, "/api/orders?q=ORD&status=pending&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.Filter{Search: "ORD", Status: order.StatusPending, Limit: 10}, ts.orders.filter)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, "alice", http.MethodGet, "/api/orders?status=lost", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "alice", http.MethodGet, "/api/orders?limit=-1", "").Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, "alice", http.MethodGet, "/api/orders/pending", "").Code)

	w = ts.do(t, "alice", http.MethodGet, "/api/orders/6", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLedger(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "admin", http.MethodGet, "/api/purchases?product_id=7&from=2024-03-01&to=2024-03-31", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, int64(7), ts.inventory.filter.ProductID)
	require.NotNil(t, ts.inventory.filter.To)
	assert.Equal(t, 31, ts.inventory.filter.To.Day())
	assert.Equal(t, 23, ts.inventory.filter.To.Hour())

	assert.Equal(t, http.StatusBadRequest, ts.do(t, "admin", http.MethodGet, "/api/outgoings?product_id=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "admin", http.MethodGet, "/api/outgoings?from=yesterday", "").Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, "alice", http.MethodGet, "/api/outgoings", "").Code)

	w = ts.do(t, "admin", http.MethodPost, "/api/purchases",
		`{"product_id":7,"quantity":10,"purchase_price":"2.50","supplier":"Acme"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"total_amount":"25.00"`)

	w = ts.do(t, "admin", http.MethodPost, "/api/outgoings",
		`{"product_id":7,"quantity":3,"reason":"return","order_id":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, ts.inventory.outgoing)
	assert.Equal(t, inventory.ReasonReturn, ts.inventory.outgoing.Reason)
	assert.Contains(t, w.Body.String(), `"order_id":5`)

	w = ts.do(t, "admin", http.MethodPost, "/api/outgoings", `{"product_id":7,"quantity":1,"reason":"theft"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.inventory.err = &inventory.InsufficientStockError{ProductID: 7, Requested: 9, Available: 2}
	w = ts.do(t, "admin", http.MethodPost, "/api/outgoings", `{"product_id":7,"quantity":9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Equal(t, map[string]int{"purchase": 10, "outgoing": 3}, ts.rec.stock)
}

func TestLedger_QuantityRange(t *testing.T) {
	for _, target := range []string{"/api/purchases", "/api/outgoings"} {
		t.Run(target, func(t *testing.T) {
			ts := newTestServer()
			w := ts.do(t, "admin", http.MethodPost, target,
				`{"product_id":7,"quantity":3000000000,"purchase_price":"1"}`)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Empty(t, ts.rec.stock)
		})
	}
}

func TestPurgeOrders(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, "alice", http.MethodDelete, "/api/orders", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, "admin", http.MethodDelete, "/api/orders?before=2024-03-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":3}`, w.Body.String())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ts.orders.before)

	w = ts.do(t, "admin", http.MethodDelete, "/api/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.orders.before.IsZero())

	assert.Equal(t, http.StatusBadRequest, ts.do(t, "admin", http.MethodDelete, "/api/orders?before=soon", "").Code)
	assert.Equal(t, []string{"purge:error", "purge:ok", "purge:ok"}, ts.rec.ops)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer()

	assert.Equal(t, http.StatusForbidden, ts.do(t, "alice", http.MethodGet, "/api/dashboard", "").Code)

	w := ts.do(t, "admin", http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"totals": {
			"products": 1, "orders": 1, "pending_orders": 1, "low_stock_products": 1,
			"purchases": 4, "outgoings": 2, "inventory_value": "241.00"
		},
		"recent_orders": [{
			"id": 5, "order_number": "ORD-20240315-ABCDEF12",
			"customer_name": "", "customer_email": "", "customer_phone": "", "shipping_address": "", "notes": "",
			"order_date": "2024-03-15T09:30:00Z", "status": "Pending", "total_amount": "0.00",
			"payment_date": null, "stock_reserved_at": null, "items": []
		}],
		"low_stock": [],
		"activity": [
			{"kind": "order", "at": "2024-03-15T09:30:00Z", "description": "Order ORD-20240315-ABCDEF12 - Alice"},
			{"kind": "purchase", "at": "2024-03-15T08:30:00Z", "description": "Purchased 4 Desk"}
		]
	}`, w.Body.String())
}
