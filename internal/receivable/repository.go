package receivable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists receivable balances in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations the recurrence runs inside one
// transaction: the predecessor read, the day aggregation, and the keyed
// replace must observe a single snapshot.
type TxRepository interface {
	LatestBefore(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) (*Balance, error)
	UncomputedActivityDays(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, after, before time.Time) ([]time.Time, error)
	AggregateDay(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) (DayAggregate, error)
	Upsert(ctx context.Context, balance Balance) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txRepository struct {
	q querier
}

const serializationFailure = "40001"

// WithTx runs fn inside a serializable transaction, retrying a bounded number
// of times when the database aborts it with a serialization failure. Paired
// with the redis key lock this guarantees the read-modify-replace sequence for
// one counterparty-day never interleaves with another writer's.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("receivable repository not initialised")
	}
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("receivable: serialization retries exhausted: %w", lastErr)
}

func (r *Repository) runTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("receivable: begin tx: %w", err)
	}
	if err := fn(ctx, &txRepository{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("receivable: commit tx: %w", err)
	}
	return nil
}

// LatestBefore returns the newest stored balance strictly before day, or nil
// when the counterparty has none. Two records sharing that predecessor day is
// ledger corruption and fails the lookup.
func (t *txRepository) LatestBefore(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) (*Balance, error) {
	rows, err := t.q.Query(ctx, `SELECT day, cash_delta::text, cylinder_delta, cash_total::text, cylinder_total, updated_at
FROM receivable_balances
WHERE tenant_id=$1 AND counterparty_id=$2 AND day < $3
ORDER BY day DESC
LIMIT 2`, tenantID, counterpartyID, day)
	if err != nil {
		return nil, fmt.Errorf("receivable: latest before: %w", err)
	}
	defer rows.Close()

	var found []Balance
	for rows.Next() {
		b, err := scanBalance(rows, tenantID, counterpartyID)
		if err != nil {
			return nil, err
		}
		found = append(found, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receivable: latest before: %w", err)
	}
	switch {
	case len(found) == 0:
		return nil, nil
	case len(found) == 2 && found[0].Day.Equal(found[1].Day):
		return nil, ErrLedgerCorrupt
	default:
		b := found[0]
		return &b, nil
	}
}

// UncomputedActivityDays lists days in (after, before) that saw sales or
// deposits but hold no stored balance. A non-empty result means the chain has
// a gap and the target day must not be computed yet.
func (t *txRepository) UncomputedActivityDays(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, after, before time.Time) ([]time.Time, error) {
	rows, err := t.q.Query(ctx, `SELECT d FROM (
	SELECT event_date::date AS d FROM sale_events WHERE tenant_id=$1 AND counterparty_id=$2
	UNION
	SELECT event_date::date AS d FROM deposits WHERE tenant_id=$1 AND counterparty_id=$2
) activity
WHERE d > $3 AND d < $4
  AND NOT EXISTS (
	SELECT 1 FROM receivable_balances b
	WHERE b.tenant_id=$1 AND b.counterparty_id=$2 AND b.day = d
  )
ORDER BY d ASC`, tenantID, counterpartyID, after, before)
	if err != nil {
		return nil, fmt.Errorf("receivable: uncomputed days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("receivable: scan day: %w", err)
		}
		days = append(days, Day(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receivable: uncomputed days: %w", err)
	}
	return days, nil
}

// AggregateDay sums the counterparty's sales and deposits for one day.
func (t *txRepository) AggregateDay(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) (DayAggregate, error) {
	var (
		agg          DayAggregate
		revenueText  string
		discountText string
		depositText  string
	)
	err := t.q.QueryRow(ctx, `SELECT
	COALESCE(SUM(total_value), 0)::text,
	COALESCE(SUM(discount), 0)::text,
	COALESCE(SUM(qty) FILTER (WHERE sale_type='REFILL'), 0),
	COALESCE(SUM(cylinders_returned), 0)
FROM sale_events
WHERE tenant_id=$1 AND counterparty_id=$2 AND event_date::date = $3::date`,
		tenantID, counterpartyID, day).
		Scan(&revenueText, &discountText, &agg.RefillQty, &agg.CylindersReturned)
	if err != nil {
		return DayAggregate{}, fmt.Errorf("receivable: aggregate sales: %w", err)
	}
	err = t.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text
FROM deposits
WHERE tenant_id=$1 AND counterparty_id=$2 AND event_date::date = $3::date`,
		tenantID, counterpartyID, day).
		Scan(&depositText)
	if err != nil {
		return DayAggregate{}, fmt.Errorf("receivable: aggregate deposits: %w", err)
	}
	if agg.SalesRevenue, err = decimal.NewFromString(revenueText); err != nil {
		return DayAggregate{}, fmt.Errorf("receivable: parse revenue: %w", err)
	}
	if agg.Discount, err = decimal.NewFromString(discountText); err != nil {
		return DayAggregate{}, fmt.Errorf("receivable: parse discount: %w", err)
	}
	if agg.CashDeposited, err = decimal.NewFromString(depositText); err != nil {
		return DayAggregate{}, fmt.Errorf("receivable: parse deposits: %w", err)
	}
	return agg, nil
}

// Upsert replaces the balance for its (tenant, counterparty, day) key.
func (t *txRepository) Upsert(ctx context.Context, b Balance) error {
	_, err := t.q.Exec(ctx, `INSERT INTO receivable_balances
	(tenant_id, counterparty_id, day, cash_delta, cylinder_delta, cash_total, cylinder_total, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (tenant_id, counterparty_id, day) DO UPDATE SET
	cash_delta = EXCLUDED.cash_delta,
	cylinder_delta = EXCLUDED.cylinder_delta,
	cash_total = EXCLUDED.cash_total,
	cylinder_total = EXCLUDED.cylinder_total,
	updated_at = NOW()`,
		b.TenantID, b.CounterpartyID, b.Day, b.CashDelta.String(), b.CylinderDelta, b.CashTotal.String(), b.CylinderTotal)
	if err != nil {
		return fmt.Errorf("receivable: upsert balance: %w", err)
	}
	return nil
}

// DaysAfter lists stored balance days strictly after day, ascending. These
// are the records invalidated by a retroactive change to day.
func (r *Repository) DaysAfter(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) ([]time.Time, error) {
	if r == nil {
		return nil, errors.New("receivable repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT day FROM receivable_balances
WHERE tenant_id=$1 AND counterparty_id=$2 AND day > $3
ORDER BY day ASC`, tenantID, counterpartyID, day)
	if err != nil {
		return nil, fmt.Errorf("receivable: days after: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("receivable: scan day: %w", err)
		}
		days = append(days, Day(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receivable: days after: %w", err)
	}
	return days, nil
}

// ListRange returns stored balances for a counterparty between two days
// inclusive, ascending.
func (r *Repository) ListRange(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, from, to time.Time) ([]Balance, error) {
	if r == nil {
		return nil, errors.New("receivable repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT day, cash_delta::text, cylinder_delta, cash_total::text, cylinder_total, updated_at
FROM receivable_balances
WHERE tenant_id=$1 AND counterparty_id=$2 AND day >= $3 AND day <= $4
ORDER BY day ASC`, tenantID, counterpartyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("receivable: list range: %w", err)
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		b, err := scanBalance(rows, tenantID, counterpartyID)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receivable: list range: %w", err)
	}
	return balances, nil
}

func scanBalance(rows pgx.Rows, tenantID uuid.UUID, counterpartyID int64) (Balance, error) {
	var (
		b         Balance
		deltaText string
		totalText string
	)
	if err := rows.Scan(&b.Day, &deltaText, &b.CylinderDelta, &totalText, &b.CylinderTotal, &b.UpdatedAt); err != nil {
		return Balance{}, fmt.Errorf("receivable: scan balance: %w", err)
	}
	b.TenantID = tenantID
	b.CounterpartyID = counterpartyID
	b.Day = Day(b.Day)
	var err error
	if b.CashDelta, err = decimal.NewFromString(deltaText); err != nil {
		return Balance{}, fmt.Errorf("receivable: parse cash delta: %w", err)
	}
	if b.CashTotal, err = decimal.NewFromString(totalText); err != nil {
		return Balance{}, fmt.Errorf("receivable: parse cash total: %w", err)
	}
	return b, nil
}
