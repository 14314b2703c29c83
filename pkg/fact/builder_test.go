package fact

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/dimension"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
	"github.com/Ramsey-B/aster/pkg/surrogate"
)

func orderLineSpec() models.FactSpec {
	return models.FactSpec{
		Name:      "fact_order_line",
		Source:    "order_lines",
		KeyFields: []string{"order_number", "order_line_number"},
		Dimensions: []models.DimensionRef{
			{Dimension: "dim_customer", KeyFields: []string{"customer_number"}, Target: "customer_key"},
			{Dimension: "dim_product", KeyFields: []string{"product_code"}, Target: "product_key"},
		},
		Measures: []models.MeasureColumn{
			{Source: "quantity_ordered", Target: "quantity"},
			{Source: "price_each", Target: "sale_price"},
		},
		Derived: []models.DerivedMeasure{
			{Target: "profit", Kind: models.DerivedDifference, Left: "price_each", Right: "buy_price"},
			{Target: "discount_percentage", Kind: models.DerivedPercentOfBase, Left: "msrp", Right: "price_each"},
		},
	}
}

func orderLine() records.Record {
	return records.Record{
		"order_number":      10100,
		"order_line_number": 3,
		"customer_number":   363,
		"product_code":      "S18_1749",
		"quantity_ordered":  30,
		"price_each":        "80.00",
		"buy_price":         "55.50",
		"msrp":              "100.00",
	}
}

func TestBuildFactRow(t *testing.T) {
	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	result, err := builder.Build([]records.Record{orderLine()})
	require.NoError(t, err)
	require.Empty(t, result.RowErrors)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]

	wantKey, err := surrogate.Key("10100", "3")
	require.NoError(t, err)
	assert.Equal(t, wantKey, row.Key)

	assert.True(t, decimal.NewFromInt(30).Equal(row.Measures["quantity"]))
	assert.True(t, decimal.RequireFromString("24.50").Equal(row.Measures["profit"]))
	assert.True(t, decimal.NewFromInt(20).Equal(row.Measures["discount_percentage"]),
		"list 100, sale 80 must derive a 20 percent discount, got %s", row.Measures["discount_percentage"])
}

func TestDimensionKeysMatchDimensionBuild(t *testing.T) {
	// Build the customer dimension from the customers relation, then the
	// fact from the order lines; the foreign key must land on a built row.
	dimBuilder, err := dimension.NewBuilder(models.DimensionSpec{
		Name:      "dim_customer",
		Source:    "customers",
		KeyFields: []string{"customer_number"},
	})
	require.NoError(t, err)

	dimResult, err := dimBuilder.Build([]records.Record{
		{"customer_number": 363},
	})
	require.NoError(t, err)
	require.Len(t, dimResult.Rows, 1)

	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	result, err := builder.Build([]records.Record{orderLine()})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	assert.Equal(t, dimResult.Rows[0].Key, result.Rows[0].DimensionKeys["customer_key"])
}

func TestZeroListPriceRejectsRowNotBatch(t *testing.T) {
	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	bad := orderLine()
	bad["order_line_number"] = 4
	bad["msrp"] = "0"

	result, err := builder.Build([]records.Record{orderLine(), bad})
	require.NoError(t, err, "a zero list price must not crash or abort the batch")

	assert.Len(t, result.Rows, 1)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 1, result.RowErrors[0].Row())
	assert.Equal(t, "msrp", result.RowErrors[0].Field)
	assert.Contains(t, result.RowErrors[0].Message, "zero")
}

func TestMissingMeasureRejectsRow(t *testing.T) {
	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	rec := orderLine()
	delete(rec, "quantity_ordered")

	result, err := builder.Build([]records.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, "quantity", result.RowErrors[0].Column)
}

func TestMissingKeyFieldRejectsRow(t *testing.T) {
	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	rec := orderLine()
	delete(rec, "order_line_number")

	result, err := builder.Build([]records.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	require.Len(t, result.RowErrors, 1)
}

func TestFailFastAborts(t *testing.T) {
	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	bad := orderLine()
	bad["msrp"] = "0"

	result, err := builder.BuildWithOptions([]records.Record{bad, orderLine()}, &Options{FailFast: true})
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestReferentialCheckAgainstDimensionKeySets(t *testing.T) {
	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	customerKey, err := surrogate.Key("363")
	require.NoError(t, err)
	productKey, err := surrogate.Key("S18_1749")
	require.NoError(t, err)

	opts := &Options{
		DimensionKeys: map[string]map[string]struct{}{
			"dim_customer": {customerKey: {}},
			"dim_product":  {productKey: {}},
		},
	}

	result, err := builder.BuildWithOptions([]records.Record{orderLine()}, opts)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.Empty(t, result.RowErrors)

	// A record referencing a customer the dimension never saw fails the
	// referential check instead of emitting a dangling key.
	stray := orderLine()
	stray["customer_number"] = 999

	result, err = builder.BuildWithOptions([]records.Record{stray}, opts)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, "customer_key", result.RowErrors[0].Column)
}

func TestDecimalPrecisionSurvivesAggregation(t *testing.T) {
	builder, err := NewBuilder(orderLineSpec())
	require.NoError(t, err)

	recs := make([]records.Record, 10)
	for i := range recs {
		rec := orderLine()
		rec["order_line_number"] = i + 1
		rec["price_each"] = "80.10"
		rec["buy_price"] = "55.50"
		recs[i] = rec
	}

	result, err := builder.Build(recs)
	require.NoError(t, err)
	require.Len(t, result.Rows, 10)

	total := decimal.Zero
	for _, row := range result.Rows {
		total = total.Add(row.Measures["profit"])
	}
	assert.True(t, decimal.RequireFromString("246.00").Equal(total),
		"repeated aggregation must not drift, got %s", total)
}
