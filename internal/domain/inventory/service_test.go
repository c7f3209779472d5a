package inventory

import (
	"context"
	"maps"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/product"
)

type fakeLedger struct {
	products  map[int64]product.Product
	purchases []Purchase
	outgoings []Outgoing
	insertErr error
}

func newFakeLedger(products ...product.Product) *fakeLedger {
	f := &fakeLedger{products: make(map[int64]product.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeLedger) ListPurchases(_ context.Context, _ Filter) ([]Purchase, error) {
	return f.purchases, nil
}

func (f *fakeLedger) ListOutgoings(_ context.Context, _ Filter) ([]Outgoing, error) {
	return f.outgoings, nil
}

func (f *fakeLedger) WithinTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx := &fakeTx{ledger: f, products: maps.Clone(f.products)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	f.products = tx.products
	f.purchases = append(f.purchases, tx.purchases...)
	f.outgoings = append(f.outgoings, tx.outgoings...)
	return nil
}

type fakeTx struct {
	ledger    *fakeLedger
	products  map[int64]product.Product
	purchases []Purchase
	outgoings []Outgoing
}

func (t *fakeTx) LockProduct(_ context.Context, id int64) (*product.Product, error) {
	p, ok := t.products[id]
	if !ok {
		return nil, &product.NotFoundError{ProductID: id}
	}
	return &p, nil
}

func (t *fakeTx) AdjustStock(_ context.Context, id int64, delta int, at time.Time) error {
	p := t.products[id]
	p.QuantityInStock += delta
	p.LastUpdated = &at
	t.products[id] = p
	return nil
}

func (t *fakeTx) InsertPurchase(_ context.Context, p *Purchase) error {
	if t.ledger.insertErr != nil {
		return t.ledger.insertErr
	}
	p.ID = int64(len(t.ledger.purchases) + 1)
	t.purchases = append(t.purchases, *p)
	return nil
}

func (t *fakeTx) InsertOutgoing(_ context.Context, o *Outgoing) error {
	if t.ledger.insertErr != nil {
		return t.ledger.insertErr
	}
	o.ID = int64(len(t.ledger.outgoings) + 1)
	t.outgoings = append(t.outgoings, *o)
	return nil
}

var (
	admin = auth.Actor{Role: auth.RoleAdmin, Email: "admin@example.com"}
	user  = auth.Actor{Role: auth.RoleUser, Email: "user@example.com"}
	now   = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

func widget(stock int) product.Product {
	return product.Product{ID: 1, Name: "Widget", SKU: "W-1", QuantityInStock: stock, Supplier: "Acme"}
}

func newTestService(l *fakeLedger) *Service {
	svc := NewService(l)
	svc.now = func() time.Time { return now }
	return svc
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestParseReason(t *testing.T) {
	for in, want := range map[string]Reason{
		"":          ReasonSale,
		"sale":      ReasonSale,
		"DAMAGE":    ReasonDamage,
		" Transfer": ReasonTransfer,
		"return":    ReasonReturn,
	} {
		got, err := ParseReason(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseReason("Theft")
	var vErr *product.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reason", vErr.Field)
}

func TestRecordPurchase(t *testing.T) {
	l := newFakeLedger(widget(4))
	svc := newTestService(l)

	p := &Purchase{ProductID: 1, Quantity: 6, PurchasePrice: decimal.RequireFromString("2.505")}
	require.NoError(t, svc.RecordPurchase(context.Background(), admin, p))

	assert.Equal(t, 10, l.products[1].QuantityInStock)
	require.NotNil(t, l.products[1].LastUpdated)
	assert.Equal(t, now, *l.products[1].LastUpdated)
	require.Len(t, l.purchases, 1)
	assert.Equal(t, "Widget", p.ProductName)
	assert.Equal(t, "Acme", p.Supplier, "defaults to the product supplier")
	assert.True(t, decimal.RequireFromString("2.51").Equal(p.PurchasePrice))
	assert.True(t, decimal.RequireFromString("15.06").Equal(p.TotalAmount))
	assert.Equal(t, now, p.PurchaseDate)
}

func TestRecordPurchase_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		actor auth.Actor
		in    Purchase
		check func(t *testing.T, err error)
	}{
		{
			name:  "user",
			actor: user,
			in:    Purchase{ProductID: 1, Quantity: 1},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, auth.ErrForbidden) },
		},
		{
			name:  "zero quantity",
			actor: admin,
			in:    Purchase{ProductID: 1},
			check: func(t *testing.T, err error) {
				var vErr *product.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "quantity", vErr.Field)
			},
		},
		{
			name:  "negative price",
			actor: admin,
			in:    Purchase{ProductID: 1, Quantity: 1, PurchasePrice: decimal.NewFromInt(-1)},
			check: func(t *testing.T, err error) {
				var vErr *product.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "purchase_price", vErr.Field)
			},
		},
		{
			name:  "quantity overflow",
			actor: admin,
			in:    Purchase{ProductID: 1, Quantity: product.MaxQuantity + 1},
			check: func(t *testing.T, err error) {
				var vErr *product.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "quantity", vErr.Field)
			},
		},
		{
			name:  "stock ceiling",
			actor: admin,
			in:    Purchase{ProductID: 1, Quantity: product.MaxQuantity - 1},
			check: func(t *testing.T, err error) {
				var vErr *product.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, vErr.Reason, "above")
			},
		},
		{
			name:  "unknown product",
			actor: admin,
			in:    Purchase{ProductID: 9, Quantity: 1},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, product.ErrNotFound) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger(widget(4))
			err := newTestService(l).RecordPurchase(context.Background(), tt.actor, &tt.in)
			tt.check(t, err)
			assert.Equal(t, 4, l.products[1].QuantityInStock)
			assert.Empty(t, l.purchases)
		})
	}
}

func TestRecordOutgoing(t *testing.T) {
	tests := []struct {
		name      string
		reason    Reason
		qty       int
		wantStock int
		wantErr   bool
	}{
		{name: "sale deducts", reason: ReasonSale, qty: 3, wantStock: 2},
		{name: "default reason is sale", qty: 5, wantStock: 0},
		{name: "damage deducts", reason: ReasonDamage, qty: 1, wantStock: 4},
		{name: "transfer needs stock", reason: ReasonTransfer, qty: 6, wantStock: 5, wantErr: true},
		{name: "return adds", reason: ReasonReturn, qty: 6, wantStock: 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger(widget(5))
			o := &Outgoing{ProductID: 1, Quantity: tt.qty, Reason: tt.reason, Recipient: " Shop "}

			err := newTestService(l).RecordOutgoing(context.Background(), admin, o)
			if tt.wantErr {
				var stockErr *InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, 5, stockErr.Available)
				assert.ErrorIs(t, err, ErrInsufficientStock)
				assert.Empty(t, l.outgoings)
			} else {
				require.NoError(t, err)
				require.Len(t, l.outgoings, 1)
				assert.Equal(t, "Shop", o.Recipient)
				assert.Nil(t, o.TotalAmount)
			}
			assert.Equal(t, tt.wantStock, l.products[1].QuantityInStock)
		})
	}
}

func TestRecordOutgoing_QuantityBounds(t *testing.T) {
	tests := []struct {
		name   string
		reason Reason
		qty    int
	}{
		{name: "sale overflow", reason: ReasonSale, qty: product.MaxQuantity + 1},
		{name: "return past ceiling", reason: ReasonReturn, qty: product.MaxQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger(widget(5))
			err := newTestService(l).RecordOutgoing(context.Background(), admin, &Outgoing{ProductID: 1, Quantity: tt.qty, Reason: tt.reason})

			var vErr *product.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "quantity", vErr.Field)
			assert.Equal(t, 5, l.products[1].QuantityInStock)
			assert.Empty(t, l.outgoings)
		})
	}
}

func TestRecordOutgoing_PricedTotal(t *testing.T) {
	l := newFakeLedger(widget(5))
	o := &Outgoing{ProductID: 1, Quantity: 2, OutgoingPrice: decPtr("9.99")}

	require.NoError(t, newTestService(l).RecordOutgoing(context.Background(), admin, o))
	require.NotNil(t, o.TotalAmount)
	assert.True(t, decimal.RequireFromString("19.98").Equal(*o.TotalAmount))
	assert.Equal(t, ReasonSale, o.Reason)
}

func TestRecordOutgoing_InsertFailureRollsBack(t *testing.T) {
	l := newFakeLedger(widget(5))
	l.insertErr = errors.New("boom")

	err := newTestService(l).RecordOutgoing(context.Background(), admin, &Outgoing{ProductID: 1, Quantity: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert outgoing")
	assert.Equal(t, 5, l.products[1].QuantityInStock)
}

func TestListings_RequireAdmin(t *testing.T) {
	svc := newTestService(newFakeLedger())

	_, err := svc.Purchases(context.Background(), user, Filter{})
	require.ErrorIs(t, err, auth.ErrForbidden)
	_, err = svc.Outgoings(context.Background(), user, Filter{})
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.Outgoings(context.Background(), admin, Filter{ProductID: 1})
	require.NoError(t, err)
}
