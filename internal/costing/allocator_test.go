package costing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(yy, mm, dd int) time.Time {
	return time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
}

func lot(id int64, qty int64, cost string, date time.Time) PurchaseLot {
	return PurchaseLot{
		ID:        id,
		Qty:       qty,
		UnitCost:  decimal.RequireFromString(cost),
		HasCost:   true,
		EventDate: date,
	}
}

func sale(id int64, qty int64, total string, date time.Time) SaleEvent {
	return SaleEvent{
		ID:         id,
		Qty:        qty,
		TotalValue: decimal.RequireFromString(total),
		Type:       SaleTypeRefill,
		EventDate:  date,
	}
}

func TestAllocateCrossesLotBoundary(t *testing.T) {
	lots := []PurchaseLot{
		lot(1, 10, "100", day(2026, 1, 1)),
		lot(2, 10, "120", day(2026, 1, 2)),
	}
	sales := []SaleEvent{sale(1, 15, "2250", day(2026, 1, 3))}

	res, err := Allocate(lots, sales)
	require.NoError(t, err)

	require.Equal(t, int64(15), res.SoldQty)
	require.True(t, res.COGS.Equal(decimal.RequireFromString("1600")), "COGS = %s", res.COGS)
	require.True(t, res.AvgBuyPrice.Round(2).Equal(decimal.RequireFromString("106.67")),
		"avg buy = %s", res.AvgBuyPrice)
	require.True(t, res.AllocatedRevenue.Equal(decimal.RequireFromString("2250")))
	require.Zero(t, res.ShortfallQty)

	require.Len(t, res.RemainingLots, 1)
	require.Equal(t, int64(2), res.RemainingLots[0].LotID)
	require.Equal(t, int64(5), res.RemainingLots[0].Qty)
	require.True(t, res.RemainingValue.Equal(decimal.RequireFromString("600")))
}

func TestAllocateConsumesOldestFirst(t *testing.T) {
	lots := []PurchaseLot{
		lot(1, 5, "90", day(2026, 1, 1)),
		lot(2, 5, "110", day(2026, 1, 5)),
	}
	sales := []SaleEvent{sale(1, 3, "450", day(2026, 1, 6))}

	res, err := Allocate(lots, sales)
	require.NoError(t, err)

	// Three units all come from the older lot at 90.
	require.True(t, res.COGS.Equal(decimal.RequireFromString("270")))
	require.Len(t, res.RemainingLots, 2)
	require.Equal(t, int64(1), res.RemainingLots[0].LotID)
	require.Equal(t, int64(2), res.RemainingLots[0].Qty)
	require.Equal(t, int64(5), res.RemainingLots[1].Qty)
}

func TestAllocateIgnoresZeroQuantityLot(t *testing.T) {
	lots := []PurchaseLot{
		lot(1, 10, "100", day(2026, 1, 1)),
		lot(2, 0, "120", day(2026, 1, 2)),
		lot(3, 10, "130", day(2026, 1, 3)),
	}
	sales := []SaleEvent{sale(1, 12, "1800", day(2026, 1, 4))}

	res, err := Allocate(lots, sales)
	require.NoError(t, err)

	// The empty lot holds no stock so consumption rolls straight past it.
	require.True(t, res.COGS.Equal(decimal.RequireFromString("1260")), "COGS = %s", res.COGS)
	require.Zero(t, res.ShortfallQty)
	require.Empty(t, res.Warnings)
	require.Len(t, res.RemainingLots, 1)
	require.Equal(t, int64(3), res.RemainingLots[0].LotID)
	require.Equal(t, int64(8), res.RemainingLots[0].Qty)
}

func TestAllocateConservesQuantity(t *testing.T) {
	lots := []PurchaseLot{
		lot(1, 7, "100", day(2026, 1, 1)),
		lot(2, 4, "105", day(2026, 1, 2)),
		lot(3, 9, "95", day(2026, 1, 3)),
	}
	sales := []SaleEvent{
		sale(1, 6, "900", day(2026, 1, 4)),
		sale(2, 5, "800", day(2026, 1, 5)),
	}

	res, err := Allocate(lots, sales)
	require.NoError(t, err)

	var purchased, remaining int64
	for _, l := range lots {
		purchased += l.Qty
	}
	for _, r := range res.RemainingLots {
		remaining += r.Qty
	}
	consumed := res.SoldQty - res.ShortfallQty
	require.Equal(t, purchased, consumed+remaining)
}

func TestAllocateShortfallIsProportional(t *testing.T) {
	lots := []PurchaseLot{lot(1, 10, "100", day(2026, 1, 1))}
	sales := []SaleEvent{sale(1, 15, "3000", day(2026, 1, 2))}

	res, err := Allocate(lots, sales)
	require.NoError(t, err)

	require.Equal(t, int64(5), res.ShortfallQty)
	require.True(t, res.Shortfall())
	// Revenue recognised for 10 of 15 units: 3000 * 10/15 = 2000.
	require.True(t, res.AllocatedRevenue.Equal(decimal.RequireFromString("2000")),
		"revenue = %s", res.AllocatedRevenue)
	require.True(t, res.COGS.Equal(decimal.RequireFromString("1000")))
	require.NotEmpty(t, res.Warnings)
	require.Empty(t, res.RemainingLots)
}

func TestAllocateDoesNotMutateInputs(t *testing.T) {
	lots := []PurchaseLot{lot(1, 10, "100", day(2026, 1, 1))}
	sales := []SaleEvent{sale(1, 4, "600", day(2026, 1, 2))}

	first, err := Allocate(lots, sales)
	require.NoError(t, err)
	second, err := Allocate(lots, sales)
	require.NoError(t, err)

	require.Equal(t, int64(10), lots[0].Qty)
	require.True(t, first.COGS.Equal(second.COGS))
	require.Equal(t, first.RemainingLots, second.RemainingLots)
}

func TestAllocateSkipsCostlessLots(t *testing.T) {
	costless := PurchaseLot{ID: 1, Qty: 10, HasCost: false, EventDate: day(2026, 1, 1)}
	lots := []PurchaseLot{costless, lot(2, 10, "120", day(2026, 1, 2))}
	sales := []SaleEvent{sale(1, 5, "750", day(2026, 1, 3))}

	res, err := Allocate(lots, sales)
	require.NoError(t, err)

	// All five units must come from the costed lot.
	require.True(t, res.COGS.Equal(decimal.RequireFromString("600")))
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "lot 1")
}

func TestAllocateNoCostBasis(t *testing.T) {
	lots := []PurchaseLot{
		{ID: 1, Qty: 10, HasCost: false, EventDate: day(2026, 1, 1)},
		{ID: 2, Qty: 5, HasCost: false, EventDate: day(2026, 1, 2)},
	}
	sales := []SaleEvent{sale(1, 5, "750", day(2026, 1, 3))}

	_, err := Allocate(lots, sales)
	require.ErrorIs(t, err, ErrNoCostBasis)
}

func TestAllocateNoSales(t *testing.T) {
	lots := []PurchaseLot{lot(1, 10, "100", day(2026, 1, 1))}

	res, err := Allocate(lots, nil)
	require.NoError(t, err)
	require.Zero(t, res.SoldQty)
	require.True(t, res.COGS.IsZero())
	require.True(t, res.AvgBuyPrice.IsZero())
	require.True(t, res.RemainingValue.Equal(decimal.RequireFromString("1000")))
}

func TestAllocateNoLots(t *testing.T) {
	sales := []SaleEvent{sale(1, 5, "750", day(2026, 1, 3))}

	res, err := Allocate(nil, sales)
	require.NoError(t, err)
	require.Equal(t, int64(5), res.ShortfallQty)
	require.True(t, res.AllocatedRevenue.IsZero())
}

func TestAllocateRejectsUnorderedStreams(t *testing.T) {
	lots := []PurchaseLot{
		lot(1, 10, "100", day(2026, 1, 5)),
		lot(2, 10, "120", day(2026, 1, 1)),
	}
	_, err := Allocate(lots, nil)
	require.ErrorIs(t, err, ErrUnorderedLots)

	sales := []SaleEvent{
		sale(1, 2, "300", day(2026, 1, 5)),
		sale(2, 2, "300", day(2026, 1, 1)),
	}
	_, err = Allocate([]PurchaseLot{lot(1, 10, "100", day(2026, 1, 1))}, sales)
	require.ErrorIs(t, err, ErrUnorderedSales)
}
