// Package fact builds the fact table: one row per transactional source
// record, keyed by a composite-derived surrogate key, carrying one foreign
// surrogate key per referenced dimension and the exact-decimal measures.
package fact

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/aster/pkg/dimension"
	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
	"github.com/Ramsey-B/aster/pkg/surrogate"
)

var validate = validator.New()

// PercentScale is the fixed decimal scale carried by derived percentages.
const PercentScale = 4

var hundred = decimal.NewFromInt(100)

// Builder produces the fact row set for one FactSpec. Stateless after
// construction and safe for concurrent use.
type Builder struct {
	spec models.FactSpec
}

// Options tune a single build invocation.
type Options struct {
	// FailFast aborts the build on the first bad row.
	FailFast bool
	// DimensionKeys holds the surrogate-key sets produced by the dimension
	// phase, keyed by dimension name. When present, every foreign key on a
	// fact row is verified against the referenced set and a miss is
	// reported as a referential-consistency row error. A miss means the
	// fact and dimension builds read different source snapshots.
	DimensionKeys map[string]map[string]struct{}
}

// Result holds the built rows plus the per-row failures that were skipped.
type Result struct {
	Fact      string
	Rows      []models.FactRow
	RowErrors asterrors.RowErrors
}

// NewBuilder validates the spec and returns a builder for it.
func NewBuilder(spec models.FactSpec) (*Builder, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, asterrors.NewBuildErrorf("invalid fact spec: %v", err).AddBuilder(spec.Name)
	}
	return &Builder{spec: spec}, nil
}

// Spec returns the spec this builder was constructed with.
func (b *Builder) Spec() models.FactSpec {
	return b.spec
}

// Build produces one FactRow per source record. Rows with missing key
// fields, missing measures, or a zero base on a percentage derivation are
// reported per-row and skipped; one bad order line never sinks the batch.
func (b *Builder) Build(recs []records.Record) (*Result, error) {
	return b.BuildWithOptions(recs, nil)
}

// BuildWithOptions is Build with per-invocation options.
func (b *Builder) BuildWithOptions(recs []records.Record, opts *Options) (*Result, error) {
	result := &Result{
		Fact: b.spec.Name,
		Rows: make([]models.FactRow, 0, len(recs)),
	}

	for i, rec := range recs {
		row, err := b.buildRow(rec, opts)
		if err != nil {
			rowErr := asterrors.WrapBuildError(err).AddBuilder(b.spec.Name).AddRow(i)
			if opts != nil && opts.FailFast {
				return nil, rowErr
			}
			result.RowErrors = append(result.RowErrors, rowErr)
			continue
		}
		result.Rows = append(result.Rows, *row)
	}

	return result, nil
}

func (b *Builder) buildRow(rec records.Record, opts *Options) (*models.FactRow, error) {
	keyValues, err := dimension.KeyValues(rec, b.spec.KeyFields)
	if err != nil {
		return nil, err
	}

	key, err := surrogate.Key(keyValues...)
	if err != nil {
		return nil, err
	}

	dimensionKeys := make(map[string]string, len(b.spec.Dimensions))
	for _, ref := range b.spec.Dimensions {
		// The identical stringification + hashing rule used when the
		// dimension itself was built, so the keys join by construction.
		refValues, err := dimension.KeyValues(rec, ref.KeyFields)
		if err != nil {
			return nil, asterrors.WrapBuildError(err).AddColumn(ref.Target)
		}

		refKey, err := surrogate.Key(refValues...)
		if err != nil {
			return nil, asterrors.WrapBuildError(err).AddColumn(ref.Target)
		}

		if opts != nil && opts.DimensionKeys != nil {
			keySet, ok := opts.DimensionKeys[ref.Dimension]
			if !ok {
				return nil, asterrors.NewBuildErrorf("no key set for dimension %q", ref.Dimension).AddColumn(ref.Target)
			}
			if _, ok := keySet[refKey]; !ok {
				return nil, asterrors.NewBuildErrorf("dimension key %q has no matching row in %q (inconsistent source snapshot)", strings.Join(refValues, dimension.BusinessKeySeparator), ref.Dimension).AddColumn(ref.Target)
			}
		}

		dimensionKeys[ref.Target] = refKey
	}

	measures := make(map[string]decimal.Decimal, len(b.spec.Measures)+len(b.spec.Derived))
	for _, m := range b.spec.Measures {
		v, err := rec.Decimal(m.Source)
		if err != nil {
			return nil, asterrors.WrapBuildError(err).AddColumn(m.Target)
		}
		measures[m.Target] = v
	}

	for _, d := range b.spec.Derived {
		v, err := derive(rec, d)
		if err != nil {
			return nil, asterrors.WrapBuildError(err).AddColumn(d.Target)
		}
		measures[d.Target] = v
	}

	return &models.FactRow{
		Key:           key,
		DimensionKeys: dimensionKeys,
		Measures:      measures,
	}, nil
}

func derive(rec records.Record, d models.DerivedMeasure) (decimal.Decimal, error) {
	left, err := rec.Decimal(d.Left)
	if err != nil {
		return decimal.Zero, err
	}
	right, err := rec.Decimal(d.Right)
	if err != nil {
		return decimal.Zero, err
	}

	switch d.Kind {
	case models.DerivedDifference:
		return left.Sub(right), nil
	case models.DerivedPercentOfBase:
		if left.IsZero() {
			return decimal.Zero, asterrors.NewBuildErrorf("cannot derive percentage: base field %q is zero", d.Left).AddField(d.Left)
		}
		return left.Sub(right).Div(left).Mul(hundred).Round(PercentScale), nil
	default:
		return decimal.Zero, asterrors.NewBuildErrorf("unknown derived measure kind %q", d.Kind)
	}
}
