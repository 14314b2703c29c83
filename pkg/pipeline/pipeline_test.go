package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func starDefinition() *models.ModelDefinition {
	return &models.ModelDefinition{
		Dimensions: []models.DimensionSpec{
			{
				Name:      "dim_customer",
				Source:    "customers",
				KeyFields: []string{"customer_number"},
				Columns: []models.ColumnMapping{
					{Source: "customer_name", Target: "customer_name", Required: true},
					{Source: "country", Target: "country"},
				},
			},
			{
				Name:      "dim_product",
				Source:    "products",
				KeyFields: []string{"product_code"},
				Columns: []models.ColumnMapping{
					{Source: "product_name", Target: "product_name", Required: true},
				},
			},
		},
		Fact: models.FactSpec{
			Name:      "fact_order_line",
			Source:    "orderdetails",
			KeyFields: []string{"order_number", "order_line_number"},
			Dimensions: []models.DimensionRef{
				{Dimension: "dim_customer", KeyFields: []string{"customer_number"}, Target: "customer_key"},
				{Dimension: "dim_product", KeyFields: []string{"product_code"}, Target: "product_key"},
			},
			Measures: []models.MeasureColumn{
				{Source: "price_each", Target: "price_each"},
			},
			Derived: []models.DerivedMeasure{
				{Target: "profit", Kind: models.DerivedDifference, Left: "price_each", Right: "buy_price"},
			},
		},
		Calendar: &models.CalendarSpec{StartDate: "2003-01-01", EndDate: "2003-01-31"},
	}
}

func starSnapshot() records.Snapshot {
	return records.Snapshot{
		"customers": {
			{"customer_number": "103", "customer_name": "Atelier graphique", "country": "France"},
			{"customer_number": "112", "customer_name": "Signal Gift Stores", "country": "USA"},
		},
		"products": {
			{"product_code": "S18_1749", "product_name": "1917 Grand Touring Sedan"},
			{"product_code": "S18_2248", "product_name": "1911 Ford Town Car"},
		},
		"orderdetails": {
			{"order_number": "10100", "order_line_number": "1", "customer_number": "103", "product_code": "S18_1749", "price_each": "136.00", "buy_price": "86.70"},
			{"order_number": "10100", "order_line_number": "2", "customer_number": "112", "product_code": "S18_2248", "price_each": "55.09", "buy_price": "33.30"},
		},
	}
}

func TestRun_BuildsAllPhases(t *testing.T) {
	p, err := New(testLogger(), starDefinition(), Options{Workers: 4})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), starSnapshot())
	require.NoError(t, err)

	require.Len(t, result.Dimensions, 2)
	assert.Len(t, result.Dimensions["dim_customer"].Rows, 2)
	assert.Len(t, result.Dimensions["dim_product"].Rows, 2)
	require.NotNil(t, result.Fact)
	assert.Len(t, result.Fact.Rows, 2)
	assert.Len(t, result.Calendar, 31)
	assert.Empty(t, result.RowErrors())
	assert.Equal(t, 4, result.DimensionRowCount())
}

func TestRun_FactKeysJoinToDimensions(t *testing.T) {
	p, err := New(testLogger(), starDefinition(), Options{Workers: 2})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), starSnapshot())
	require.NoError(t, err)

	customerKeys := result.Dimensions["dim_customer"].KeySet()
	productKeys := result.Dimensions["dim_product"].KeySet()
	for _, row := range result.Fact.Rows {
		assert.Contains(t, customerKeys, row.DimensionKeys["customer_key"])
		assert.Contains(t, productKeys, row.DimensionKeys["product_key"])
	}
}

func TestRun_ReferentialCheckCatchesInconsistentSnapshot(t *testing.T) {
	snapshot := starSnapshot()
	snapshot["orderdetails"] = append(snapshot["orderdetails"], records.Record{
		"order_number": "10101", "order_line_number": "1",
		"customer_number": "999", "product_code": "S18_1749",
		"price_each": "10.00", "buy_price": "5.00",
	})

	p, err := New(testLogger(), starDefinition(), Options{Workers: 2})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), snapshot)
	require.NoError(t, err)

	assert.Len(t, result.Fact.Rows, 2)
	require.Len(t, result.Fact.RowErrors, 1)
	assert.Equal(t, 2, result.Fact.RowErrors[0].Row())
	assert.Contains(t, result.Fact.RowErrors[0].Error(), "dim_customer")
}

func TestRun_SkipReferentialCheckKeepsDanglingRow(t *testing.T) {
	snapshot := starSnapshot()
	snapshot["orderdetails"] = append(snapshot["orderdetails"], records.Record{
		"order_number": "10101", "order_line_number": "1",
		"customer_number": "999", "product_code": "S18_1749",
		"price_each": "10.00", "buy_price": "5.00",
	})

	p, err := New(testLogger(), starDefinition(), Options{SkipReferentialCheck: true})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), snapshot)
	require.NoError(t, err)
	assert.Len(t, result.Fact.Rows, 3)
	assert.Empty(t, result.Fact.RowErrors)
}

func TestRun_MissingRelationFailsRun(t *testing.T) {
	snapshot := starSnapshot()
	delete(snapshot, "products")

	p, err := New(testLogger(), starDefinition(), Options{Workers: 2})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "products")
}

func TestRun_RowErrorIndicesSurviveChunking(t *testing.T) {
	snapshot := starSnapshot()
	// Pad with good rows so the bad one lands deep inside a later chunk.
	for i := 0; i < 10; i++ {
		snapshot["orderdetails"] = append(snapshot["orderdetails"], records.Record{
			"order_number": "10200", "order_line_number": fmt.Sprintf("%d", i+1),
			"customer_number": "103", "product_code": "S18_1749",
			"price_each": "136.00", "buy_price": "86.70",
		})
	}
	snapshot["orderdetails"] = append(snapshot["orderdetails"], records.Record{
		"order_number": "10300", "order_line_number": "1",
		"customer_number": "103", "product_code": "S18_1749",
		"price_each": "not a number", "buy_price": "86.70",
	})

	p, err := New(testLogger(), starDefinition(), Options{Workers: 4})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), snapshot)
	require.NoError(t, err)

	require.Len(t, result.Fact.RowErrors, 1)
	// The bad record is the 13th order line overall (index 12).
	assert.Equal(t, 12, result.Fact.RowErrors[0].Row())
	assert.Len(t, result.Fact.Rows, 12)
}

func TestRun_FailFastAbortsRun(t *testing.T) {
	snapshot := starSnapshot()
	snapshot["customers"] = append(snapshot["customers"], records.Record{
		"customer_number": "114", "country": "Australia",
	})

	p, err := New(testLogger(), starDefinition(), Options{FailFast: true})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dim_customer")
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	def := starDefinition()
	def.Dimensions[0].KeyFields = nil

	_, err := New(testLogger(), def, Options{})
	require.Error(t, err)
}

func TestRun_InvalidCalendarDatesFailRun(t *testing.T) {
	def := starDefinition()
	def.Calendar = &models.CalendarSpec{StartDate: "01/01/2003", EndDate: "2003-01-31"}

	p, err := New(testLogger(), def, Options{})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), starSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar")
}

func TestRun_NoCalendarSpecSkipsCalendar(t *testing.T) {
	def := starDefinition()
	def.Calendar = nil

	p, err := New(testLogger(), def, Options{})
	require.NoError(t, err)

	result, err := p.Run(context.Background(), starSnapshot())
	require.NoError(t, err)
	assert.Empty(t, result.Calendar)
}
