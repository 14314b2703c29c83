package models

import (
	"encoding/json"
	"time"
)

// DimensionSpec declares how one dimension table is derived from a source
// relation: which fields feed the surrogate key, which columns are projected
// (with renames), and which composite attributes are concatenated together.
type DimensionSpec struct {
	Name       string            `json:"name" validate:"required"`
	Source     string            `json:"source" validate:"required"`
	KeyFields  []string          `json:"key_fields" validate:"required,min=1,dive,required"`
	Columns    []ColumnMapping   `json:"columns" validate:"omitempty,dive"`
	Composites []CompositeColumn `json:"composites" validate:"omitempty,dive"`
}

// ColumnMapping projects a source field into an output column.
type ColumnMapping struct {
	Source   string `json:"source" validate:"required"`
	Target   string `json:"target" validate:"required"`
	Required bool   `json:"required"`
}

// CompositeColumn concatenates source fields into one output column, in
// order, joined by Separator. The default separator is "": the builder
// reproduces the source-of-record behavior (e.g. first+last name with no
// space) unless the spec says otherwise.
type CompositeColumn struct {
	Target    string   `json:"target" validate:"required"`
	Sources   []string `json:"sources" validate:"required,min=1,dive,required"`
	Separator string   `json:"separator"`
}

// FactSpec declares the fact grain: the row-identity key fields, one key rule
// per referenced dimension (identical to the rule used when that dimension was
// built), the direct decimal measures, and the derived measures.
type FactSpec struct {
	Name       string           `json:"name" validate:"required"`
	Source     string           `json:"source" validate:"required"`
	KeyFields  []string         `json:"key_fields" validate:"required,min=1,dive,required"`
	Dimensions []DimensionRef   `json:"dimensions" validate:"omitempty,dive"`
	Measures   []MeasureColumn  `json:"measures" validate:"omitempty,dive"`
	Derived    []DerivedMeasure `json:"derived" validate:"omitempty,dive"`
}

// DimensionRef attaches a foreign surrogate key to each fact row. KeyFields
// name fields on the fact source record; they must stringify to the same
// values the dimension's own KeyFields produced, or the join is broken.
type DimensionRef struct {
	Dimension string   `json:"dimension" validate:"required"`
	KeyFields []string `json:"key_fields" validate:"required,min=1,dive,required"`
	Target    string   `json:"target" validate:"required"`
}

// MeasureColumn carries a numeric measure straight through as an exact decimal.
type MeasureColumn struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// DerivedKind selects the arithmetic applied to a derived measure.
type DerivedKind string

const (
	// DerivedDifference computes left - right (e.g. profit = sale - cost).
	DerivedDifference DerivedKind = "difference"
	// DerivedPercentOfBase computes (left - right) / left * 100 (e.g.
	// discount percentage from list and sale price). A zero left operand
	// rejects the row with an arithmetic error; the division is never
	// performed unchecked.
	DerivedPercentOfBase DerivedKind = "percent_of_base"
)

// DerivedMeasure computes a new measure from two source fields.
type DerivedMeasure struct {
	Target string      `json:"target" validate:"required"`
	Kind   DerivedKind `json:"kind" validate:"required,oneof=difference percent_of_base"`
	Left   string      `json:"left" validate:"required"`
	Right  string      `json:"right" validate:"required"`
}

// CalendarSpec bounds the materialized date dimension. Dates are inclusive,
// formatted 2006-01-02.
type CalendarSpec struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// ModelSpec is the persisted definition of a complete star schema build:
// every dimension, the fact grain, and the calendar bounds.
type ModelSpec struct {
	ID         string          `json:"id" db:"id" param:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	Key        string          `json:"key" db:"key" validate:"required"`
	Name       string          `json:"name" db:"name"`
	Version    int             `json:"version" db:"version"`
	Definition json.RawMessage `json:"definition" db:"definition"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// ModelDefinition is the JSON payload stored in ModelSpec.Definition.
type ModelDefinition struct {
	Dimensions []DimensionSpec `json:"dimensions" validate:"required,min=1,dive"`
	Fact       FactSpec        `json:"fact" validate:"required"`
	Calendar   *CalendarSpec   `json:"calendar" validate:"omitempty"`
}

// ParseDefinition decodes the stored definition payload.
func (s *ModelSpec) ParseDefinition() (*ModelDefinition, error) {
	var def ModelDefinition
	if err := json.Unmarshal(s.Definition, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// CreateModelSpecRequest is the API payload for creating or replacing a spec.
type CreateModelSpecRequest struct {
	Key        string          `json:"key" validate:"required"`
	Name       string          `json:"name" validate:"omitempty"`
	Definition ModelDefinition `json:"definition" validate:"required"`
}

// ModelSpecListResponse wraps a page of specs.
type ModelSpecListResponse struct {
	Items      []ModelSpec `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}
