package costing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// lotState is the working copy of a lot during one allocation run. Allocation
// is a fold over these copies; the input lots are never mutated, so the same
// slices can be re-evaluated concurrently.
type lotState struct {
	lot       *PurchaseLot
	remaining int64
}

// Allocate walks sales in date order against lots in date order and costs each
// sold unit at the price of the oldest lot still holding stock. Lots must be
// the product's full history ascending by date; sales must be ascending by
// date and restricted to one sale type.
//
// When a sale exceeds available lot stock, the matched portion is costed
// normally and revenue is recognised in proportion to the matched quantity.
// The unmatched remainder is reported through ShortfallQty and Warnings, never
// discarded silently.
func Allocate(lots []PurchaseLot, sales []SaleEvent) (AllocationResult, error) {
	if err := checkLotOrder(lots); err != nil {
		return AllocationResult{}, err
	}
	if err := checkSaleOrder(sales); err != nil {
		return AllocationResult{}, err
	}

	result := AllocationResult{
		COGS:             decimal.Zero,
		AvgBuyPrice:      decimal.Zero,
		AllocatedRevenue: decimal.Zero,
		AvgSellPrice:     decimal.Zero,
		RemainingValue:   decimal.Zero,
	}

	states := make([]lotState, 0, len(lots))
	costed := 0
	for i := range lots {
		lot := &lots[i]
		if !lot.HasCost {
			if lot.Qty > 0 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("lot %d has no resolvable unit cost; excluded from allocation", lot.ID))
			}
			continue
		}
		costed++
		states = append(states, lotState{lot: lot, remaining: lot.Qty})
	}
	if len(lots) > 0 && costed == 0 {
		return AllocationResult{}, ErrNoCostBasis
	}

	for _, sale := range sales {
		if sale.Qty <= 0 {
			continue
		}
		result.SoldQty += sale.Qty

		need := sale.Qty
		var matched int64
		for i := range states {
			if need == 0 {
				break
			}
			st := &states[i]
			if st.remaining == 0 {
				continue
			}
			take := need
			if st.remaining < take {
				take = st.remaining
			}
			result.COGS = result.COGS.Add(st.lot.UnitCost.Mul(decimal.NewFromInt(take)))
			st.remaining -= take
			need -= take
			matched += take
		}

		if matched == sale.Qty {
			result.AllocatedRevenue = result.AllocatedRevenue.Add(sale.TotalValue)
			continue
		}

		// Partial fill: recognise revenue only for the units that could be
		// tied to costed inventory.
		if matched > 0 {
			portion := sale.TotalValue.
				Mul(decimal.NewFromInt(matched)).
				Div(decimal.NewFromInt(sale.Qty))
			result.AllocatedRevenue = result.AllocatedRevenue.Add(portion)
		}
		result.ShortfallQty += need
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("sale %d: %d of %d units had no lot to consume", sale.ID, need, sale.Qty))
	}

	if result.SoldQty > 0 {
		sold := decimal.NewFromInt(result.SoldQty)
		result.AvgBuyPrice = result.COGS.Div(sold)
		result.AvgSellPrice = result.AllocatedRevenue.Div(sold)
	}

	for _, st := range states {
		if st.remaining == 0 {
			continue
		}
		result.RemainingLots = append(result.RemainingLots, RemainingLot{
			LotID:     st.lot.ID,
			Qty:       st.remaining,
			UnitCost:  st.lot.UnitCost,
			EventDate: st.lot.EventDate,
		})
		result.RemainingValue = result.RemainingValue.
			Add(st.lot.UnitCost.Mul(decimal.NewFromInt(st.remaining)))
	}

	return result, nil
}

func checkLotOrder(lots []PurchaseLot) error {
	for i := 1; i < len(lots); i++ {
		if lots[i].EventDate.Before(lots[i-1].EventDate) {
			return ErrUnorderedLots
		}
	}
	return nil
}

func checkSaleOrder(sales []SaleEvent) error {
	for i := 1; i < len(sales); i++ {
		if sales[i].EventDate.Before(sales[i-1].EventDate) {
			return ErrUnorderedSales
		}
	}
	return nil
}
