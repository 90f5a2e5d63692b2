package agreement

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ahmadramadhannn/mudah-titip/consignment"
)

const testConsignmentID = "5f0c6a8e-2b1d-4c37-9a4e-8d2f1b7c3e90"

func TestWithConsignment_CommitsOnSuccess(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{rows: []fakeRow{consignmentRow(testConsignmentID)}}}
	store := NewPGStore(pool)

	var seen consignment.Consignment
	err := store.WithConsignment(context.Background(), testConsignmentID, func(ctx context.Context, tx StoreTx, c consignment.Consignment) error {
		seen = c
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if seen.ID != testConsignmentID || seen.ShopOwnerID != "shop-owner" {
		t.Fatalf("unexpected consignment passed to callback: %+v", seen)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
	if len(pool.tx.queries) == 0 || !strings.Contains(pool.tx.queries[0], "FOR UPDATE") {
		t.Errorf("expected consignment row to be locked first, got %v", pool.tx.queries)
	}
}

func TestWithConsignment_RollsBackOnError(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{rows: []fakeRow{consignmentRow(testConsignmentID)}}}
	store := NewPGStore(pool)

	boom := errors.New("boom")
	err := store.WithConsignment(context.Background(), testConsignmentID, func(ctx context.Context, tx StoreTx, c consignment.Consignment) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback to be called")
	}
}

func TestWithConsignment_MissingConsignment(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{rows: []fakeRow{{err: pgx.ErrNoRows}}}}
	store := NewPGStore(pool)

	called := false
	err := store.WithConsignment(context.Background(), "9b5e7c1a-0d3f-4e6b-8a21-c4f7d9e2b610", func(ctx context.Context, tx StoreTx, c consignment.Consignment) error {
		called = true
		return nil
	})
	if !errors.Is(err, consignment.ErrNotFound) {
		t.Fatalf("expected consignment.ErrNotFound, got %v", err)
	}
	if called {
		t.Errorf("expected callback to be skipped")
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
}

func TestWithConsignment_MalformedID(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	store := NewPGStore(pool)

	err := store.WithConsignment(context.Background(), "not-a-uuid", func(ctx context.Context, tx StoreTx, c consignment.Consignment) error {
		t.Fatalf("callback must not run")
		return nil
	})
	if !errors.Is(err, consignment.ErrNotFound) {
		t.Fatalf("expected consignment.ErrNotFound, got %v", err)
	}
	if len(pool.tx.queries) != 0 {
		t.Fatalf("expected no query for a malformed id, got %v", pool.tx.queries)
	}
}

func TestUpdateStatus_AcceptedIndexViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: acceptedIndexName}
	tx := &fakeTx{rows: []fakeRow{{err: pgErr}}}
	storeTx := &pgStoreTx{tx: tx}

	msg := "ok"
	_, err := storeTx.UpdateStatus(context.Background(), "agr-1", StatusAccepted, &msg, time.Now())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateStatus_MissingRow(t *testing.T) {
	tx := &fakeTx{rows: []fakeRow{{err: pgx.ErrNoRows}}}
	storeTx := &pgStoreTx{tx: tx}

	_, err := storeTx.UpdateStatus(context.Background(), "agr-404", StatusRejected, nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScanAgreement_DecimalColumns(t *testing.T) {
	threshold := 40
	bonus := "50000.00"
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	row := fakeRow{values: []any{
		"agr-1", "cons-1", "user-1", "PROPOSED",
		"TIERED_BONUS", "0.00", &threshold,
		&bonus, (*string)(nil), (*string)(nil),
		(*string)(nil), created, created,
	}}
	a, err := scanAgreement(row)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if a.Terms.CommissionType != CommissionTieredBonus {
		t.Fatalf("unexpected commission type %s", a.Terms.CommissionType)
	}
	if !a.Terms.BonusAmount.Valid || a.Terms.BonusAmount.Decimal.String() != "50000" {
		t.Fatalf("unexpected bonus %+v", a.Terms.BonusAmount)
	}
	if a.Terms.BonusThresholdPercent == nil || *a.Terms.BonusThresholdPercent != 40 {
		t.Fatalf("unexpected threshold %v", a.Terms.BonusThresholdPercent)
	}
	if a.PreviousVersionID != nil {
		t.Fatalf("expected opening version")
	}
}

func consignmentRow(id string) fakeRow {
	consignorID := "consignor"
	return fakeRow{values: []any{
		id, "Keripik", "Toko Maju", "shop-owner", &consignorID, "Bu Sari", 100, 50, "12000.00",
	}}
}

// fakeRow copies values into Scan destinations positionally.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("fakeRow: column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case **string:
			*p = r.values[i].(*string)
		case *int:
			*p = r.values[i].(int)
		case **int:
			*p = r.values[i].(*int)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("fakeRow: unsupported destination")
		}
	}
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.tx == nil {
		f.tx = &fakeTx{}
	}
	return f.tx, nil
}

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

type fakeTx struct {
	rows      []fakeRow
	queries   []string
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	if len(f.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
