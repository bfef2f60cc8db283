// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/pulse/internal/signal"
	"github.com/linnemanlabs/pulse/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/pulse/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// Store persists signals in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The Store takes
// ownership of the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const signalColumns = `id, number, signal_type, status, urgency, amount, confidence, flag_reason,
	lifecycle_stage, sla_hours, current_owner, title, description, submitter_name, location,
	funding_source, created_at`

// Get retrieves a signal by ID.
func (s *Store) Get(ctx context.Context, id string) (*signal.Signal, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`
	sig, err := scanSignal(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		recordError(span, err)
		return nil, false, err
	}
	return sig, true, nil
}

// List returns every signal ordered by number.
func (s *Store) List(ctx context.Context) ([]signal.Signal, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+signalColumns+` FROM signals ORDER BY number`)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := []signal.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			recordError(span, err)
			return nil, err
		}
		out = append(out, *sig)
	}
	if err := rows.Err(); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	span.SetAttributes(attribute.Int("db.response.returned_rows", len(out)))
	return out, nil
}

// Create inserts sig and sets sig.Number from the identity column.
func (s *Store) Create(ctx context.Context, sig *signal.Signal) error {
	ctx, span := startSpan(ctx, "pgstore.Create", "INSERT")
	defer span.End()

	query := `INSERT INTO signals (
		id, signal_type, status, urgency, amount, confidence, flag_reason,
		lifecycle_stage, sla_hours, current_owner, title, description, submitter_name,
		location, funding_source, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	RETURNING number`

	var number int64
	err := s.pool.QueryRow(ctx, query,
		sig.ID, string(sig.Type), string(sig.Status), string(sig.Urgency), sig.Amount, sig.Confidence,
		sig.FlagReason, sig.LifecycleStage, sig.SLAHours, sig.CurrentOwner, sig.Title, sig.Description,
		sig.SubmitterName, sig.Location, sig.FundingSource, sig.CreatedAt,
	).Scan(&number)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return triage.ErrDuplicate
		}
		recordError(span, err)
		return fmt.Errorf("insert signal: %w", err)
	}

	sig.Number = int(number)
	return nil
}

// Put updates every mutable column of an existing signal.
func (s *Store) Put(ctx context.Context, sig *signal.Signal) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPDATE")
	defer span.End()

	query := `UPDATE signals SET
		signal_type     = $2,
		status          = $3,
		urgency         = $4,
		amount          = $5,
		confidence      = $6,
		flag_reason     = $7,
		lifecycle_stage = $8,
		sla_hours       = $9,
		current_owner   = $10,
		title           = $11,
		description     = $12,
		submitter_name  = $13,
		location        = $14,
		funding_source  = $15,
		updated_at      = now()
	WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		sig.ID, string(sig.Type), string(sig.Status), string(sig.Urgency), sig.Amount, sig.Confidence,
		sig.FlagReason, sig.LifecycleStage, sig.SLAHours, sig.CurrentOwner, sig.Title, sig.Description,
		sig.SubmitterName, sig.Location, sig.FundingSource,
	)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("update signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return triage.ErrNotFound
	}
	return nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// scanSignal scans a single row into a signal.Signal. It returns
// pgx.ErrNoRows unwrapped so callers can detect a miss.
func scanSignal(row pgx.Row) (*signal.Signal, error) {
	var (
		sig      signal.Signal
		number   int64
		typ      string
		status   string
		urgency  string
		slaHours *int32
	)

	err := row.Scan(
		&sig.ID, &number, &typ, &status, &urgency, &sig.Amount, &sig.Confidence, &sig.FlagReason,
		&sig.LifecycleStage, &slaHours, &sig.CurrentOwner, &sig.Title, &sig.Description,
		&sig.SubmitterName, &sig.Location, &sig.FundingSource, &sig.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	sig.Number = int(number)
	sig.Type = signal.Type(typ)
	sig.Status = signal.Status(status)
	sig.Urgency = signal.Urgency(urgency)
	if slaHours != nil {
		h := int(*slaHours)
		sig.SLAHours = &h
	}
	return &sig, nil
}
