package receivable

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrLedgerCorrupt indicates duplicate records share the same
	// counterparty-day key. The chain cannot be trusted; never guess.
	ErrLedgerCorrupt = errors.New("receivable: duplicate balance records for one day")
	// ErrOutOfOrder indicates the predecessor chain has a gap: activity exists
	// on earlier days that have no stored balance yet.
	ErrOutOfOrder = errors.New("receivable: earlier days not yet computed")
)

// Balance is the running receivable state for one counterparty on one day.
// Exactly one record exists per (tenant, counterparty, day); recomputation
// replaces it wholesale.
type Balance struct {
	TenantID       uuid.UUID
	CounterpartyID int64
	Day            time.Time
	CashDelta      decimal.Decimal
	CylinderDelta  int64
	CashTotal      decimal.Decimal
	CylinderTotal  int64
	UpdatedAt      time.Time
}

// DayAggregate sums one counterparty's transactions for one day.
type DayAggregate struct {
	SalesRevenue      decimal.Decimal
	CashDeposited     decimal.Decimal
	Discount          decimal.Decimal
	RefillQty         int64
	CylindersReturned int64
}

// CashDelta is the day's change in cash owed: what was sold minus what was
// paid in and forgiven.
func (a DayAggregate) CashDelta() decimal.Decimal {
	return a.SalesRevenue.Sub(a.CashDeposited).Sub(a.Discount)
}

// CylinderDelta is the day's change in cylinders owed: refills handed out
// minus empties physically returned.
func (a DayAggregate) CylinderDelta() int64 {
	return a.RefillQty - a.CylindersReturned
}

// Day truncates t to its UTC calendar day, the granularity of the ledger.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
