// Package jsonx holds jx helpers shared by the HTTP API, event payloads and
// catalog files.
package jsonx

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Decimal reads a decimal written either as a JSON string or a JSON number.
func Decimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse decimal %q", s)
		}
		return v, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse decimal %s", n)
		}
		return v, nil
	default:
		return decimal.Zero, errors.Errorf("expected decimal, got %s", d.Next())
	}
}

// OptDecimal is Decimal that maps JSON null to nil.
func OptDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := Decimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// OptInt reads an integer or null.
func OptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// EncodeDecimal writes a money value as a fixed two-place string so clients
// never round-trip it through a float.
func EncodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

// FieldDecimal writes an optional decimal field, null when v is nil.
func FieldDecimal(e *jx.Encoder, name string, v *decimal.Decimal) {
	e.FieldStart(name)
	if v == nil {
		e.Null()
		return
	}
	EncodeDecimal(e, *v)
}

// FieldTime writes an optional RFC 3339 timestamp field, null when t is nil.
func FieldTime(e *jx.Encoder, name string, t *time.Time) {
	e.FieldStart(name)
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}
