package agreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ahmadramadhannn/mudah-titip/consignment"
)

// acceptedIndexName is the partial unique index allowing one ACCEPTED row per consignment.
const acceptedIndexName = "agreements_one_accepted_per_consignment"

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is the subset of *pgxpool.Pool used by PGStore.
type Pool interface {
	TxBeginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store backed by PostgreSQL. Serialization per
// consignment relies on a row lock on the consignments table.
type PGStore struct {
	pool Pool
}

func NewPGStore(pool Pool) *PGStore {
	return &PGStore{pool: pool}
}

const agreementColumns = `
	a.id::text, a.consignment_id::text, a.proposed_by::text, a.status,
	a.commission_type, a.commission_value::text, a.bonus_threshold_percent,
	a.bonus_amount::text, a.terms_note, a.response_message,
	a.previous_version_id::text, a.created_at, a.updated_at`

// WithConsignment begins a transaction, locks the consignment row and runs fn.
func (s *PGStore) WithConsignment(ctx context.Context, consignmentID string, fn func(ctx context.Context, tx StoreTx, c consignment.Consignment) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := consignment.Lock(ctx, tx, consignmentID)
	if err != nil {
		return err
	}

	if err := fn(ctx, &pgStoreTx{tx: tx}, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agreement: commit tx: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Agreement, error) {
	if uuid.Validate(id) != nil {
		return Agreement{}, ErrNotFound
	}
	a, err := scanAgreement(s.pool.QueryRow(ctx, `SELECT `+agreementColumns+` FROM agreements a WHERE a.id = $1`, id))
	if err != nil {
		return Agreement{}, wrapNotFound(err, "get")
	}
	return a, nil
}

func (s *PGStore) Chain(ctx context.Context, id string) ([]Agreement, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	const query = `
		WITH RECURSIVE chain AS (
			SELECT ag.*, 0 AS depth FROM agreements ag WHERE ag.id = $1
			UNION ALL
			SELECT prev.*, chain.depth + 1
			FROM agreements prev
			JOIN chain ON prev.id = chain.previous_version_id
		)
		SELECT ` + agreementColumns + `
		FROM chain a
		ORDER BY a.depth ASC
	`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("agreement: chain: %w", err)
	}
	chain, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	return chain, nil
}

func (s *PGStore) ListByConsignment(ctx context.Context, consignmentID string, statuses ...Status) ([]Agreement, error) {
	return listByConsignment(ctx, s.pool, consignmentID, statuses, false)
}

func (s *PGStore) ListPending(ctx context.Context, userID string) ([]Agreement, error) {
	const query = `
		SELECT ` + agreementColumns + `
		FROM agreements a
		JOIN consignments c ON c.id = a.consignment_id
		JOIN shops s ON s.id = c.shop_id
		JOIN products p ON p.id = c.product_id
		WHERE a.status = 'PROPOSED'
		  AND a.proposed_by <> $1::uuid
		  AND (s.owner_id = $1::uuid OR p.owner_id = $1::uuid)
		ORDER BY a.created_at ASC, a.id ASC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("agreement: list pending: %w", err)
	}
	return collect(rows)
}

func (s *PGStore) Consignment(ctx context.Context, consignmentID string) (consignment.Consignment, error) {
	return consignment.Get(ctx, s.pool, consignmentID)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listByConsignment(ctx context.Context, q queryer, consignmentID string, statuses []Status, lock bool) ([]Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements a WHERE a.consignment_id = $1`
	args := []any{consignmentID}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` AND a.status = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY a.created_at ASC, a.id ASC`
	if lock {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("agreement: list by consignment: %w", err)
	}
	return collect(rows)
}

type pgStoreTx struct {
	tx pgx.Tx
}

func (t *pgStoreTx) GetForUpdate(ctx context.Context, id string) (Agreement, error) {
	if uuid.Validate(id) != nil {
		return Agreement{}, ErrNotFound
	}
	a, err := scanAgreement(t.tx.QueryRow(ctx, `SELECT `+agreementColumns+` FROM agreements a WHERE a.id = $1 FOR UPDATE`, id))
	if err != nil {
		return Agreement{}, wrapNotFound(err, "get for update")
	}
	return a, nil
}

func (t *pgStoreTx) ListByConsignment(ctx context.Context, consignmentID string, statuses ...Status) ([]Agreement, error) {
	return listByConsignment(ctx, t.tx, consignmentID, statuses, true)
}

func (t *pgStoreTx) Insert(ctx context.Context, a Agreement) (Agreement, error) {
	const insertSQL = `
		INSERT INTO agreements AS a (
			id, consignment_id, proposed_by, status, commission_type, commission_value,
			bonus_threshold_percent, bonus_amount, terms_note, previous_version_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9, $10, $11, $12)
		RETURNING ` + agreementColumns

	var bonus *string
	if a.Terms.BonusAmount.Valid {
		v := a.Terms.BonusAmount.Decimal.String()
		bonus = &v
	}
	var note *string
	if a.Terms.TermsNote != "" {
		note = &a.Terms.TermsNote
	}

	created, err := scanAgreement(t.tx.QueryRow(ctx, insertSQL,
		a.ID,
		a.ConsignmentID,
		a.ProposedBy,
		string(a.Status),
		string(a.Terms.CommissionType),
		a.Terms.CommissionValue.String(),
		a.Terms.BonusThresholdPercent,
		bonus,
		note,
		a.PreviousVersionID,
		a.CreatedAt,
		a.UpdatedAt,
	))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: insert: %w", err)
	}
	return created, nil
}

func (t *pgStoreTx) UpdateStatus(ctx context.Context, id string, status Status, message *string, at time.Time) (Agreement, error) {
	const updateSQL = `
		UPDATE agreements a
		SET status = $2,
		    response_message = COALESCE($3, a.response_message),
		    updated_at = $4
		WHERE a.id = $1
		RETURNING ` + agreementColumns

	updated, err := scanAgreement(t.tx.QueryRow(ctx, updateSQL, id, string(status), message, at.UTC()))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == acceptedIndexName {
			return Agreement{}, ErrConflict
		}
		return Agreement{}, wrapNotFound(err, "update status")
	}
	return updated, nil
}

func (t *pgStoreTx) AppendEvent(ctx context.Context, agreementID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agreement: marshal event payload: %w", err)
	}
	var actor any
	if actorID != "" {
		actor = actorID
	}
	const q = `
		INSERT INTO agreement_events (agreement_id, type, actor_id, payload)
		VALUES ($1, $2, $3::uuid, $4::jsonb)
	`
	if _, err := t.tx.Exec(ctx, q, agreementID, eventType, actor, body); err != nil {
		return fmt.Errorf("agreement: insert event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgreement(row rowScanner) (Agreement, error) {
	var (
		a           Agreement
		status      string
		commission  string
		value       string
		threshold   *int
		bonus       *string
		note        *string
		previousID  *string
		responseMsg *string
	)
	if err := row.Scan(
		&a.ID,
		&a.ConsignmentID,
		&a.ProposedBy,
		&status,
		&commission,
		&value,
		&threshold,
		&bonus,
		&note,
		&responseMsg,
		&previousID,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Agreement{}, err
	}

	v, err := decimal.NewFromString(value)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: parse commission value %q: %w", value, err)
	}
	a.Status = Status(status)
	a.Terms = Terms{
		CommissionType:        CommissionType(commission),
		CommissionValue:       v,
		BonusThresholdPercent: threshold,
	}
	if bonus != nil {
		b, err := decimal.NewFromString(*bonus)
		if err != nil {
			return Agreement{}, fmt.Errorf("agreement: parse bonus amount %q: %w", *bonus, err)
		}
		a.Terms.BonusAmount = decimal.NewNullDecimal(b)
	}
	if note != nil {
		a.Terms.TermsNote = *note
	}
	a.ResponseMessage = responseMsg
	a.PreviousVersionID = previousID
	return a, nil
}

func collect(rows pgx.Rows) ([]Agreement, error) {
	defer rows.Close()

	out := make([]Agreement, 0, 8)
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("agreement: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate: %w", err)
	}
	return out, nil
}

func wrapNotFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("agreement: %s: %w", op, err)
}
