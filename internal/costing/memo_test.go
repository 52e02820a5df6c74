package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestExtractMemoPriceRefill(t *testing.T) {
	price, ok := ExtractMemoPrice("Shipment #42. Gas: 1200/unit, Cylinder: 800/unit", SaleTypeRefill)
	require.True(t, ok)
	require.True(t, price.Equal(decimal.RequireFromString("1200")))
}

func TestExtractMemoPricePackage(t *testing.T) {
	price, ok := ExtractMemoPrice("Gas: 1200/unit, Cylinder: 800/unit", SaleTypePackage)
	require.True(t, ok)
	require.True(t, price.Equal(decimal.RequireFromString("2000")))
}

func TestExtractMemoPricePackageWithoutCylinder(t *testing.T) {
	// No cylinder component recorded: the gas price still stands.
	price, ok := ExtractMemoPrice("Gas: 1200/unit", SaleTypePackage)
	require.True(t, ok)
	require.True(t, price.Equal(decimal.RequireFromString("1200")))
}

func TestExtractMemoPriceTolerantFormatting(t *testing.T) {
	cases := []string{
		"gas:1200/unit",
		"GAS : 1200 / unit",
		"restock, Gas: 1200/Unit, paid cash",
	}
	for _, memo := range cases {
		price, ok := ExtractMemoPrice(memo, SaleTypeRefill)
		require.True(t, ok, "memo %q", memo)
		require.True(t, price.Equal(decimal.RequireFromString("1200")), "memo %q", memo)
	}
}

func TestExtractMemoPriceDecimal(t *testing.T) {
	price, ok := ExtractMemoPrice("Gas: 1250.50/unit", SaleTypeRefill)
	require.True(t, ok)
	require.True(t, price.Equal(decimal.RequireFromString("1250.50")))
}

func TestExtractMemoPriceUnparseable(t *testing.T) {
	for _, memo := range []string{
		"",
		"paid the driver in cash",
		"Cylinder: 800/unit", // cylinder without gas is not a cost basis
		"Gas: abc/unit",
	} {
		_, ok := ExtractMemoPrice(memo, SaleTypeRefill)
		require.False(t, ok, "memo %q", memo)
	}
}
