// Package records defines the source record shape consumed by the dimension
// and fact builders, plus the typed accessors they share.
package records

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	asterrors "github.com/Ramsey-B/aster/pkg/errors"
)

// Record is one row from a normalized source relation: field name -> scalar
// value (string, number, date, bool, or nil). Records arrive pre-joined for
// the fact grain; the builders never reach back to the source system.
type Record map[string]any

// Has reports whether the field is present, even if its value is nil.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// IsNull reports whether the field is missing or explicitly nil.
func (r Record) IsNull(field string) bool {
	v, ok := r[field]
	return !ok || v == nil
}

// String returns the stringified value of a field.
//
// The stringification rule is load-bearing: surrogate keys are computed from
// these strings, so changing how a type renders changes every key derived from
// it. Integral floats render without a fraction ("42", not "42.000000"),
// matching how numeric business keys arrive from JSON decoding.
func (r Record) String(field string) (string, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", asterrors.NewBuildError("field is missing or null").AddField(field)
	}
	return Stringify(v), nil
}

// Decimal returns the field as an exact decimal. Money values are carried as
// decimals end to end to avoid float rounding drift across aggregation.
func (r Record) Decimal(field string) (decimal.Decimal, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return decimal.Zero, asterrors.NewBuildError("field is missing or null").AddField(field)
	}

	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, asterrors.NewBuildErrorf("value %q is not a valid decimal", val).AddField(field)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Zero, asterrors.NewBuildErrorf("value %q is not a valid decimal", val).AddField(field)
		}
		return d, nil
	default:
		return decimal.Zero, asterrors.NewBuildErrorf("cannot convert %T to decimal", v).AddField(field)
	}
}

// Stringify converts a scalar value to its canonical string form.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return Stringify(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format("2006-01-02")
	case json.Number:
		return val.String()
	case decimal.Decimal:
		return val.String()
	case nil:
		return ""
	default:
		// For anything structured, fall back to JSON encoding.
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Snapshot is a consistent set of source relations captured for one run.
// The dimension and fact builds for a run must read from the same snapshot,
// otherwise the fact side can compute keys no dimension row carries.
type Snapshot map[string][]Record

// Relation returns the records for a named source relation.
func (s Snapshot) Relation(name string) ([]Record, error) {
	recs, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("snapshot is missing relation %q", name)
	}
	return recs, nil
}
