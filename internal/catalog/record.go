// Package catalog loads product catalogs from files: the JSON seed used on
// fresh installs and gzipped JSONL feeds imported in bulk.
package catalog

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/internal/jsonx"
)

// Record is one product entry of a catalog file.
type Record struct {
	Name              string
	Description       string
	SKU               string
	Category          string
	Supplier          string
	QuantityInStock   int
	CostPrice         decimal.Decimal
	SellingPrice      decimal.Decimal
	MinimumStockLevel *int
}

// Decode reads a Record from a JSON object. Unknown keys are skipped.
func (r *Record) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			r.Name, err = d.Str()
		case "description":
			r.Description, err = d.Str()
		case "sku":
			r.SKU, err = d.Str()
		case "category":
			r.Category, err = d.Str()
		case "supplier":
			r.Supplier, err = d.Str()
		case "quantity_in_stock":
			r.QuantityInStock, err = d.Int()
		case "cost_price":
			r.CostPrice, err = jsonx.Decimal(d)
		case "selling_price":
			r.SellingPrice, err = jsonx.Decimal(d)
		case "minimum_stock_level":
			r.MinimumStockLevel, err = jsonx.OptInt(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %s", key)
		}
		return nil
	})
}

// Product converts the record into a validated catalog product.
func (r Record) Product(now time.Time) (product.Product, error) {
	p := product.Product{
		Name:              strings.TrimSpace(r.Name),
		Description:       strings.TrimSpace(r.Description),
		SKU:               strings.TrimSpace(r.SKU),
		Category:          strings.TrimSpace(r.Category),
		Supplier:          strings.TrimSpace(r.Supplier),
		QuantityInStock:   r.QuantityInStock,
		CostPrice:         r.CostPrice.Round(2),
		SellingPrice:      r.SellingPrice.Round(2),
		MinimumStockLevel: r.MinimumStockLevel,
		CreatedAt:         now,
	}
	if err := p.Validate(); err != nil {
		return p, errors.Wrapf(err, "sku %q", r.SKU)
	}
	return p, nil
}

// ReadSeed reads a JSON array of records.
func ReadSeed(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	var out []Record
	if err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var r Record
		if err := r.Decode(d); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return out, nil
}

// StreamFile decodes a gzip-compressed JSONL file, calling fn for every
// non-empty line.
func StreamFile(ctx context.Context, path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		b := scanner.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var r Record
		if err := r.Decode(jx.DecodeBytes(b)); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(r); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
