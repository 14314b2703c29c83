package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DimensionRow is one denormalized record per distinct business entity.
// Key identifies the row; BusinessKey is a human-readable rendering of the
// key field values and is not guaranteed unambiguous. Rows are rebuilt
// wholesale on every run; there is no history tracking.
type DimensionRow struct {
	Key         string         `json:"key"`
	BusinessKey string         `json:"business_key"`
	Attributes  map[string]any `json:"attributes"`
}

// FactRow is one record at the transactional grain. DimensionKeys maps each
// configured target column (e.g. "customer_key") to the surrogate key of the
// referenced dimension row; by construction both sides compute the key from
// the same stringified join values.
type FactRow struct {
	Key           string                     `json:"key"`
	DimensionKeys map[string]string          `json:"dimension_keys"`
	Measures      map[string]decimal.Decimal `json:"measures"`
}

// CalendarDay is one row of the materialized date dimension.
//
// Conventions are pinned and locale-independent: DayOfWeek is ISO-8601
// (Monday=1 .. Sunday=7), WeekOfYear is the ISO week number, MonthName is
// always English, and Quarter is (month-1)/3 + 1.
type CalendarDay struct {
	Key        string    `json:"key"`
	Date       time.Time `json:"date"`
	DayOfWeek  int       `json:"day_of_week"`
	DayOfMonth int       `json:"day_of_month"`
	DayOfYear  int       `json:"day_of_year"`
	WeekOfYear int       `json:"week_of_year"`
	Month      int       `json:"month"`
	MonthName  string    `json:"month_name"`
	Year       int       `json:"year"`
	Quarter    int       `json:"quarter"`
}
