package dimension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
)

func customerSpec() models.DimensionSpec {
	return models.DimensionSpec{
		Name:      "dim_customer",
		Source:    "customers",
		KeyFields: []string{"customer_number"},
		Columns: []models.ColumnMapping{
			{Source: "customer_name", Target: "customer_name", Required: true},
			{Source: "city", Target: "customer_city"},
			{Source: "credit_limit", Target: "credit_limit"},
		},
		Composites: []models.CompositeColumn{
			{Target: "contact_name", Sources: []string{"contact_first_name", "contact_last_name"}},
		},
	}
}

func TestBuildProducesOneRowPerBusinessKey(t *testing.T) {
	builder, err := NewBuilder(customerSpec())
	require.NoError(t, err)

	recs := []records.Record{
		{"customer_number": 103, "customer_name": "Atelier graphique", "city": "Nantes", "contact_first_name": "Carine", "contact_last_name": "Schmitt"},
		{"customer_number": 112, "customer_name": "Signal Gift Stores", "city": "Las Vegas", "contact_first_name": "Jean", "contact_last_name": "King"},
		// Duplicate business key collapses into the first occurrence.
		{"customer_number": 103, "customer_name": "Atelier graphique", "city": "Nantes", "contact_first_name": "Carine", "contact_last_name": "Schmitt"},
	}

	result, err := builder.Build(recs)
	require.NoError(t, err)
	require.Empty(t, result.RowErrors)
	require.Len(t, result.Rows, 2)

	assert.Equal(t, "103", result.Rows[0].BusinessKey)
	assert.Equal(t, "112", result.Rows[1].BusinessKey)
	assert.NotEqual(t, result.Rows[0].Key, result.Rows[1].Key)
	assert.Len(t, result.Rows[0].Key, 64)
}

func TestBuildColumnRenameAndNullPassthrough(t *testing.T) {
	builder, err := NewBuilder(customerSpec())
	require.NoError(t, err)

	result, err := builder.Build([]records.Record{
		{"customer_number": 103, "customer_name": "Atelier graphique", "contact_first_name": "Carine", "contact_last_name": "Schmitt"},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	attrs := result.Rows[0].Attributes
	assert.Equal(t, "Atelier graphique", attrs["customer_name"])
	assert.Nil(t, attrs["customer_city"], "optional missing column passes through as null")
	assert.Nil(t, attrs["credit_limit"])
}

func TestBuildCompositeConcatenatesWithoutSeparatorByDefault(t *testing.T) {
	builder, err := NewBuilder(customerSpec())
	require.NoError(t, err)

	result, err := builder.Build([]records.Record{
		{"customer_number": 103, "customer_name": "Atelier graphique", "contact_first_name": "Carine", "contact_last_name": "Schmitt"},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	// Default separator is "", no space between the parts.
	assert.Equal(t, "CarineSchmitt", result.Rows[0].Attributes["contact_name"])
}

func TestBuildCompositeHonorsConfiguredSeparator(t *testing.T) {
	spec := customerSpec()
	spec.Composites[0].Separator = " "
	builder, err := NewBuilder(spec)
	require.NoError(t, err)

	result, err := builder.Build([]records.Record{
		{"customer_number": 103, "customer_name": "Atelier graphique", "contact_first_name": "Carine", "contact_last_name": "Schmitt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Carine Schmitt", result.Rows[0].Attributes["contact_name"])
}

func TestBuildAccumulatesRowErrors(t *testing.T) {
	builder, err := NewBuilder(customerSpec())
	require.NoError(t, err)

	recs := []records.Record{
		{"customer_number": 103, "customer_name": "Atelier graphique"},
		{"customer_name": "No Key Inc"}, // missing key field
		{"customer_number": 114},        // missing required column
		{"customer_number": 119, "customer_name": "La Rochelle Gifts"},
	}

	result, err := builder.Build(recs)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	require.Len(t, result.RowErrors, 2)

	assert.Equal(t, 1, result.RowErrors[0].Row())
	assert.Equal(t, "customer_number", result.RowErrors[0].Field)
	assert.Equal(t, 2, result.RowErrors[1].Row())
	assert.Equal(t, "customer_name", result.RowErrors[1].Field)
}

func TestBuildFailFastAbortsOnFirstBadRow(t *testing.T) {
	builder, err := NewBuilder(customerSpec())
	require.NoError(t, err)

	result, err := builder.BuildWithOptions([]records.Record{
		{"customer_name": "No Key Inc"},
		{"customer_number": 103, "customer_name": "Atelier graphique"},
	}, &Options{FailFast: true})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, asterrors.IsBuildError(err))
}

func TestBuildRejectsEmptyKeyField(t *testing.T) {
	builder, err := NewBuilder(customerSpec())
	require.NoError(t, err)

	result, err := builder.Build([]records.Record{
		{"customer_number": "", "customer_name": "Empty Key Ltd"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, "customer_number", result.RowErrors[0].Field)
}

func TestBuildKeepsDistinctKeysContainingSeparator(t *testing.T) {
	builder, err := NewBuilder(models.DimensionSpec{
		Name:      "dim_part",
		Source:    "parts",
		KeyFields: []string{"series", "code"},
	})
	require.NoError(t, err)

	// Both rows render the BusinessKey "x|y|z", but they are distinct
	// entities and their surrogate keys differ.
	result, err := builder.Build([]records.Record{
		{"series": "x|y", "code": "z"},
		{"series": "x", "code": "y|z"},
	})
	require.NoError(t, err)
	require.Empty(t, result.RowErrors)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, result.Rows[0].BusinessKey, result.Rows[1].BusinessKey)
	assert.NotEqual(t, result.Rows[0].Key, result.Rows[1].Key)
}

func TestNewBuilderRejectsInvalidSpec(t *testing.T) {
	_, err := NewBuilder(models.DimensionSpec{Name: "dim_bad"})
	assert.Error(t, err)
}

func TestCompositeKeyDimension(t *testing.T) {
	builder, err := NewBuilder(models.DimensionSpec{
		Name:      "dim_employee",
		Source:    "employees",
		KeyFields: []string{"employee_number", "office_code"},
		Columns: []models.ColumnMapping{
			{Source: "job_title", Target: "job_title"},
		},
	})
	require.NoError(t, err)

	result, err := builder.Build([]records.Record{
		{"employee_number": 1002, "office_code": "1", "job_title": "President"},
		{"employee_number": 1002, "office_code": "2", "job_title": "President"},
	})
	require.NoError(t, err)

	// Same employee number under different offices is a different business key.
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "1002|1", result.Rows[0].BusinessKey)
	assert.Equal(t, "1002|2", result.Rows[1].BusinessKey)
	assert.NotEqual(t, result.Rows[0].Key, result.Rows[1].Key)
}
