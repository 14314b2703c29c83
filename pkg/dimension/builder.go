// Package dimension builds denormalized dimension tables from normalized
// source records: project/rename columns, derive composite attributes, and
// attach a deterministic surrogate key per distinct business key.
package dimension

import (
	"strings"

	"github.com/go-playground/validator/v10"

	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
	"github.com/Ramsey-B/aster/pkg/surrogate"
)

var validate = validator.New()

// BusinessKeySeparator joins the stringified key field values into the
// human-readable business key stored alongside the surrogate key.
const BusinessKeySeparator = "|"

// Builder produces the dimension row set for one DimensionSpec. A Builder is
// stateless after construction and safe for concurrent use.
type Builder struct {
	spec models.DimensionSpec
}

// Options tune a single build invocation.
type Options struct {
	// FailFast aborts the build on the first bad row instead of
	// accumulating per-row errors.
	FailFast bool
}

// Result holds the built rows plus the per-row failures that were skipped.
type Result struct {
	Dimension string
	Rows      []models.DimensionRow
	RowErrors asterrors.RowErrors
}

// KeySet returns the set of surrogate keys present in the result. The fact
// build checks its foreign keys against this set.
func (r *Result) KeySet() map[string]struct{} {
	keys := make(map[string]struct{}, len(r.Rows))
	for _, row := range r.Rows {
		keys[row.Key] = struct{}{}
	}
	return keys
}

// NewBuilder validates the spec and returns a builder for it.
func NewBuilder(spec models.DimensionSpec) (*Builder, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, asterrors.NewBuildErrorf("invalid dimension spec: %v", err).AddBuilder(spec.Name)
	}
	return &Builder{spec: spec}, nil
}

// Spec returns the spec this builder was constructed with.
func (b *Builder) Spec() models.DimensionSpec {
	return b.spec
}

// Build produces exactly one DimensionRow per distinct business key in the
// source records. Later records with an already-seen business key are
// collapsed into the first occurrence. Rows with a missing or empty key
// field are reported per-row and skipped.
func (b *Builder) Build(recs []records.Record) (*Result, error) {
	return b.BuildWithOptions(recs, nil)
}

// BuildWithOptions is Build with per-invocation options.
func (b *Builder) BuildWithOptions(recs []records.Record, opts *Options) (*Result, error) {
	result := &Result{
		Dimension: b.spec.Name,
		Rows:      make([]models.DimensionRow, 0, len(recs)),
	}
	seen := make(map[string]struct{}, len(recs))

	for i, rec := range recs {
		row, err := b.buildRow(rec)
		if err != nil {
			rowErr := asterrors.WrapBuildError(err).AddBuilder(b.spec.Name).AddRow(i)
			if opts != nil && opts.FailFast {
				return nil, rowErr
			}
			result.RowErrors = append(result.RowErrors, rowErr)
			continue
		}

		// Dedup on the surrogate key, not the joined business key: the
		// surrogate is length-prefixed so key values containing the
		// separator cannot collide, while BusinessKey is only a display
		// value and renders ("x|y","z") and ("x","y|z") identically.
		if _, ok := seen[row.Key]; ok {
			continue
		}
		seen[row.Key] = struct{}{}
		result.Rows = append(result.Rows, *row)
	}

	return result, nil
}

func (b *Builder) buildRow(rec records.Record) (*models.DimensionRow, error) {
	keyValues, err := KeyValues(rec, b.spec.KeyFields)
	if err != nil {
		return nil, err
	}

	key, err := surrogate.Key(keyValues...)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]any, len(b.spec.Columns)+len(b.spec.Composites))
	for _, col := range b.spec.Columns {
		if rec.IsNull(col.Source) {
			if col.Required {
				return nil, asterrors.NewBuildError("required field is missing or null").AddField(col.Source).AddColumn(col.Target)
			}
			attrs[col.Target] = nil
			continue
		}
		attrs[col.Target] = rec[col.Source]
	}

	for _, comp := range b.spec.Composites {
		parts := make([]string, 0, len(comp.Sources))
		for _, src := range comp.Sources {
			// Composites reproduce the source behavior verbatim: a
			// missing part renders as "" rather than failing the row.
			parts = append(parts, records.Stringify(rec[src]))
		}
		attrs[comp.Target] = strings.Join(parts, comp.Separator)
	}

	return &models.DimensionRow{
		Key:         key,
		BusinessKey: strings.Join(keyValues, BusinessKeySeparator),
		Attributes:  attrs,
	}, nil
}

// KeyValues stringifies the named key fields of a record, in order. The fact
// builder calls this with its own DimensionRef fields so both sides of a join
// derive keys from identical value sequences.
func KeyValues(rec records.Record, fields []string) ([]string, error) {
	values := make([]string, 0, len(fields))
	for _, f := range fields {
		v, err := rec.String(f)
		if err != nil {
			return nil, err
		}
		if v == "" {
			return nil, asterrors.NewBuildError("key field is empty").AddField(f)
		}
		values = append(values, v)
	}
	return values, nil
}
