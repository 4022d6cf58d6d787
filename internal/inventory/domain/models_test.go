package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBalanceApplyWeightedAverage(t *testing.T) {
	b := &Balance{
		QtyOnHand:      decimal.Zero,
		AvgCostPerUnit: decimal.Zero,
		TotalValue:     decimal.Zero,
	}

	b.Apply(&Movement{ID: snowflake.ID(1), Qty: dec("10"), UnitCost: dec("2.00"), TotalCost: dec("20.00")})
	assert.True(t, b.QtyOnHand.Equal(dec("10")))
	assert.True(t, b.AvgCostPerUnit.Equal(dec("2.00")))
	assert.True(t, b.TotalValue.Equal(dec("20.00")))

	b.Apply(&Movement{ID: snowflake.ID(2), Qty: dec("5"), UnitCost: dec("5.00"), TotalCost: dec("25.00")})
	assert.True(t, b.QtyOnHand.Equal(dec("15")), "qty: %s", b.QtyOnHand)
	assert.True(t, b.AvgCostPerUnit.Equal(dec("3.00")), "avg: %s", b.AvgCostPerUnit)
	assert.True(t, b.TotalValue.Equal(dec("45.00")), "value: %s", b.TotalValue)
	assert.Equal(t, snowflake.ID(2), *b.LastMovementID)
}

func TestBalanceApplyReversalNetsToZero(t *testing.T) {
	b := &Balance{
		QtyOnHand:      decimal.Zero,
		AvgCostPerUnit: decimal.Zero,
		TotalValue:     decimal.Zero,
	}

	b.Apply(&Movement{ID: snowflake.ID(1), Qty: dec("10"), UnitCost: dec("2.00"), TotalCost: dec("20.00")})
	b.Apply(&Movement{ID: snowflake.ID(2), Qty: dec("-10"), UnitCost: dec("2.00"), TotalCost: dec("-20.00")})

	assert.True(t, b.QtyOnHand.IsZero())
	assert.True(t, b.AvgCostPerUnit.IsZero())
	assert.True(t, b.TotalValue.IsZero())
}
