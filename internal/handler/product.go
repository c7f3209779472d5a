package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/stockroom/internal/catalog"
	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/internal/jsonx"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ps, err := h.products.List(r.Context(), product.Filter{
		Search:   q.Get("q"),
		Category: q.Get("category"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, ps, encodeProduct)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	ps, err := h.products.LowStock(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, ps, encodeProduct)
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.products.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, cs, func(e *jx.Encoder, c *string) { e.Str(*c) })
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := decodeProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Create(r.Context(), actor, &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, &p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
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
	p, err := decodeProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = id
	if err := h.products.Update(r.Context(), actor, &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, &p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
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
	if err := h.products.Delete(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeProduct reads a product body. The payload uses the same field names
// as catalog files.
func decodeProduct(r *http.Request) (product.Product, error) {
	var rec catalog.Record
	if err := decodeWith(r, rec.Decode); err != nil {
		return product.Product{}, err
	}
	return rec.Product(time.Time{})
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("sku")
	e.Str(p.SKU)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("supplier")
	e.Str(p.Supplier)
	e.FieldStart("quantity_in_stock")
	e.Int(p.QuantityInStock)
	jsonx.FieldDecimal(e, "cost_price", &p.CostPrice)
	jsonx.FieldDecimal(e, "selling_price", &p.SellingPrice)
	e.FieldStart("minimum_stock_level")
	if p.MinimumStockLevel != nil {
		e.Int(*p.MinimumStockLevel)
	} else {
		e.Null()
	}
	e.FieldStart("low_stock")
	e.Bool(p.IsLowStock())
	jsonx.FieldTime(e, "created_at", &p.CreatedAt)
	jsonx.FieldTime(e, "last_updated", p.LastUpdated)
	e.ObjEnd()
}
