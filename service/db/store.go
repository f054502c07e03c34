package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Operation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithMetrics records query durations on m.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// observe is deferred with a pointer to the named error result so it sees the final value.
func (s *Store) observe(op, table string, start time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), *err)
	}
}

// Operation is one transfer or swap run as recorded by the API.
type Operation struct {
	ID           uuid.UUID
	Kind         string
	Status       string
	Signature    *string
	Source       *string
	Destination  *string
	InputMint    *string
	OutputMint   *string
	Amount       string
	BaseAmount   uint64
	OutAmount    uint64
	Attempts     int32
	Slot         int64
	ErrorKind    *string
	ErrorMessage *string // safe to show to API callers
	ErrorDetail  *string // full cause chain, operators only
	Finality     *string
	FinalizedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateOperationParams contains the parameters for recording a new operation.
type CreateOperationParams struct {
	ID          uuid.UUID
	Kind        string
	Destination *string
	InputMint   *string
	OutputMint  *string
	Amount      string
}

// CompleteOperationParams carries the terminal outcome of an operation.
type CompleteOperationParams struct {
	ID           uuid.UUID
	Status       string
	Signature    *string
	Source       *string
	BaseAmount   uint64
	OutAmount    uint64
	Attempts     int32
	Slot         int64
	ErrorKind    *string
	ErrorMessage *string
	ErrorDetail  *string
}

// ListOperationsParams filters operations by the address they touched.
type ListOperationsParams struct {
	Address string
	Limit   int32
	Offset  int32
}

// Amounts are u64 base units held in NUMERIC(20,0) and exchanged as text.
const operationColumns = `id, kind, status, signature, source, destination, input_mint, output_mint,
	amount, base_amount::text, out_amount::text, attempts, slot, error_kind, error_message, error_detail,
	finality, finalized_at, created_at, updated_at`

// CreateOperation inserts a pending operation. A zero ID is replaced with a new one.
func (s *Store) CreateOperation(ctx context.Context, params CreateOperationParams) (op *Operation, err error) {
	defer s.observe("create_operation", "operations", time.Now(), &err)

	if params.ID == uuid.Nil {
		params.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO operations (id, kind, status, destination, input_mint, output_mint, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+operationColumns,
		params.ID, params.Kind, StatusPending,
		pgtextFromStringPtr(params.Destination),
		pgtextFromStringPtr(params.InputMint),
		pgtextFromStringPtr(params.OutputMint),
		params.Amount,
	)
	return scanOperation(row)
}

// CompleteOperation stores the terminal outcome of an operation.
func (s *Store) CompleteOperation(ctx context.Context, params CompleteOperationParams) (op *Operation, err error) {
	defer s.observe("complete_operation", "operations", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		UPDATE operations SET
			status = $2, signature = $3, source = $4, base_amount = $5::text::numeric, out_amount = $6::text::numeric,
			attempts = $7, slot = $8, error_kind = $9, error_message = $10, error_detail = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+operationColumns,
		params.ID, params.Status,
		pgtextFromStringPtr(params.Signature),
		pgtextFromStringPtr(params.Source),
		strconv.FormatUint(params.BaseAmount, 10), strconv.FormatUint(params.OutAmount, 10),
		params.Attempts, params.Slot,
		pgtextFromStringPtr(params.ErrorKind),
		pgtextFromStringPtr(params.ErrorMessage),
		pgtextFromStringPtr(params.ErrorDetail),
	)
	return scanOperation(row)
}

// RecordFinality stores the final confirmation state observed for an operation's signature.
func (s *Store) RecordFinality(ctx context.Context, signature, finality string, at time.Time) (op *Operation, err error) {
	defer s.observe("record_finality", "operations", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		UPDATE operations SET finality = $2, finalized_at = $3, updated_at = NOW()
		WHERE signature = $1
		RETURNING `+operationColumns,
		signature, finality, pgtype.Timestamptz{Time: at, Valid: true},
	)
	return scanOperation(row)
}

// GetOperation retrieves an operation by id. Returns pgx.ErrNoRows when missing.
func (s *Store) GetOperation(ctx context.Context, id uuid.UUID) (op *Operation, err error) {
	defer s.observe("get_operation", "operations", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = $1`, id)
	return scanOperation(row)
}

// GetOperationBySignature retrieves an operation by its transaction signature.
func (s *Store) GetOperationBySignature(ctx context.Context, signature string) (op *Operation, err error) {
	defer s.observe("get_operation_by_signature", "operations", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM operations WHERE signature = $1`, signature)
	return scanOperation(row)
}

// ListOperations returns operations whose source or destination is the
// given address, most recent first. An empty address lists everything.
func (s *Store) ListOperations(ctx context.Context, params ListOperationsParams) (ops []*Operation, err error) {
	defer s.observe("list_operations", "operations", time.Now(), &err)

	if params.Limit <= 0 {
		params.Limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+operationColumns+` FROM operations
		WHERE $1 = '' OR source = $1 OR destination = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		params.Address, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// DeleteOperationsOlderThan removes operations created before the given time.
func (s *Store) DeleteOperationsOlderThan(ctx context.Context, before time.Time) (n int64, err error) {
	defer s.observe("delete_operations", "operations", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM operations WHERE created_at < $1`, pgtype.Timestamptz{Time: before, Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsReferralMint reports whether a referral fee account was recorded for mint.
func (s *Store) IsReferralMint(ctx context.Context, mint string) (ok bool, err error) {
	defer s.observe("is_referral_mint", "referral_mints", time.Now(), &err)

	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM referral_mints WHERE mint = $1)`, mint).Scan(&ok)
	return ok, err
}

// EnsureReferralMint runs provision at most once per mint across every process
// sharing the database. The mint is recorded only if provision succeeds. A
// transaction-scoped advisory lock keyed on the mint is held while provision runs.
func (s *Store) EnsureReferralMint(ctx context.Context, mint string, provision func(ctx context.Context) error) (created bool, err error) {
	defer s.observe("ensure_referral_mint", "referral_mints", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('referral_mint:' || $1))`, mint); err != nil {
		return false, fmt.Errorf("advisory lock: %w", err)
	}

	var exists bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM referral_mints WHERE mint = $1)`, mint).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, tx.Commit(ctx)
	}

	if err = provision(ctx); err != nil {
		return false, err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO referral_mints (mint) VALUES ($1) ON CONFLICT DO NOTHING`, mint); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ReferralMint is a mint with a provisioned referral fee account.
type ReferralMint struct {
	Mint      string
	CreatedAt time.Time
}

// ListReferralMints returns every recorded referral mint, oldest first.
func (s *Store) ListReferralMints(ctx context.Context) (mints []ReferralMint, err error) {
	defer s.observe("list_referral_mints", "referral_mints", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `SELECT mint, created_at FROM referral_mints ORDER BY created_at, mint`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ReferralMint, error) {
		var m ReferralMint
		err := row.Scan(&m.Mint, &m.CreatedAt)
		return m, err
	})
}

// Helper functions to convert between pgx types and domain types

func scanOperation(row pgx.Row) (*Operation, error) {
	var (
		op                                   Operation
		signature, source, destination       pgtype.Text
		inputMint, outputMint                pgtype.Text
		errorKind, errorMessage, errorDetail pgtype.Text
		finality                             pgtype.Text
		baseAmount, outAmount                string
		finalizedAt                          pgtype.Timestamptz
	)
	err := row.Scan(
		&op.ID, &op.Kind, &op.Status, &signature, &source, &destination, &inputMint, &outputMint,
		&op.Amount, &baseAmount, &outAmount, &op.Attempts, &op.Slot, &errorKind, &errorMessage,
		&errorDetail, &finality, &finalizedAt, &op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if op.BaseAmount, err = strconv.ParseUint(baseAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse base_amount %q: %w", baseAmount, err)
	}
	if op.OutAmount, err = strconv.ParseUint(outAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse out_amount %q: %w", outAmount, err)
	}

	op.Signature = stringPtrFromPgtext(signature)
	op.Source = stringPtrFromPgtext(source)
	op.Destination = stringPtrFromPgtext(destination)
	op.InputMint = stringPtrFromPgtext(inputMint)
	op.OutputMint = stringPtrFromPgtext(outputMint)
	op.ErrorKind = stringPtrFromPgtext(errorKind)
	op.ErrorMessage = stringPtrFromPgtext(errorMessage)
	op.ErrorDetail = stringPtrFromPgtext(errorDetail)
	op.Finality = stringPtrFromPgtext(finality)
	op.FinalizedAt = timePtrFromPgTimestamptz(finalizedAt)
	return &op, nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
