package costing

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// Legacy shipment memos embed pricing as "Gas: 1200/unit" and optionally
// "Cylinder: 800/unit". A structured cost on the shipment record always wins;
// this parser exists only as the backfill path for records that predate the
// structured fields.
var (
	memoGasPattern      = regexp.MustCompile(`(?i)gas\s*:\s*([0-9]+(?:\.[0-9]+)?)\s*/\s*unit`)
	memoCylinderPattern = regexp.MustCompile(`(?i)cylinder\s*:\s*([0-9]+(?:\.[0-9]+)?)\s*/\s*unit`)
)

// ExtractMemoPrice derives a unit cost from a free-text shipment memo for the
// given sale-type context. REFILL costs carry the gas component only (the
// cylinder is returned); PACKAGE costs carry gas plus cylinder. The second
// return is false when no numeric gas amount can be extracted.
func ExtractMemoPrice(memo string, saleType SaleType) (decimal.Decimal, bool) {
	if memo == "" {
		return decimal.Zero, false
	}
	gasMatch := memoGasPattern.FindStringSubmatch(memo)
	if gasMatch == nil {
		return decimal.Zero, false
	}
	gas, err := decimal.NewFromString(gasMatch[1])
	if err != nil {
		return decimal.Zero, false
	}
	if saleType == SaleTypeRefill {
		return gas, true
	}
	if cylMatch := memoCylinderPattern.FindStringSubmatch(memo); cylMatch != nil {
		if cyl, err := decimal.NewFromString(cylMatch[1]); err == nil {
			return gas.Add(cyl), true
		}
	}
	return gas, true
}
