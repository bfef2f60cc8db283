// Package sqlitestore provides a single-file SQLite implementation of
// triage.Store for edge and single-node deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/pulse/internal/signal"
	"github.com/linnemanlabs/pulse/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/pulse/internal/triage/sqlitestore")

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	number          INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	signal_type     TEXT NOT NULL,
	status          TEXT NOT NULL,
	urgency         TEXT NOT NULL,
	amount          REAL,
	confidence      REAL,
	flag_reason     TEXT NOT NULL DEFAULT '',
	lifecycle_stage TEXT NOT NULL DEFAULT '',
	sla_hours       INTEGER,
	current_owner   TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	submitter_name  TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	funding_source  TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS signals_status_idx ON signals (status);
`

// Store persists signals in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database at path and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single writer connection avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const signalColumns = `id, number, signal_type, status, urgency, amount, confidence, flag_reason,
	lifecycle_stage, sla_hours, current_owner, title, description, submitter_name, location,
	funding_source, created_at`

// Get retrieves a signal by ID.
func (s *Store) Get(ctx context.Context, id string) (*signal.Signal, bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Get", "SELECT")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	ctx, span := startSpan(ctx, "sqlitestore.List", "SELECT")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals ORDER BY number`)
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
	return out, nil
}

// Create inserts sig and sets sig.Number from the autoincrement key.
func (s *Store) Create(ctx context.Context, sig *signal.Signal) error {
	ctx, span := startSpan(ctx, "sqlitestore.Create", "INSERT")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM signals WHERE id = ?`, sig.ID).Scan(&exists)
	switch {
	case err == nil:
		return triage.ErrDuplicate
	case !errors.Is(err, sql.ErrNoRows):
		recordError(span, err)
		return fmt.Errorf("check id: %w", err)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO signals (
			id, signal_type, status, urgency, amount, confidence, flag_reason,
			lifecycle_stage, sla_hours, current_owner, title, description, submitter_name,
			location, funding_source, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, string(sig.Type), string(sig.Status), string(sig.Urgency),
		nullFloat(sig.Amount), nullFloat(sig.Confidence), sig.FlagReason,
		sig.LifecycleStage, nullInt(sig.SLAHours), sig.CurrentOwner, sig.Title, sig.Description,
		sig.SubmitterName, sig.Location, sig.FundingSource,
		sig.CreatedAt.UTC().Format(time.RFC3339Nano), now,
	)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("insert signal: %w", err)
	}
	number, err := res.LastInsertId()
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		recordError(span, err)
		return fmt.Errorf("commit: %w", err)
	}
	sig.Number = int(number)
	return nil
}

// Put updates every mutable column of an existing signal.
func (s *Store) Put(ctx context.Context, sig *signal.Signal) error {
	ctx, span := startSpan(ctx, "sqlitestore.Put", "UPDATE")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET
			signal_type = ?, status = ?, urgency = ?, amount = ?, confidence = ?, flag_reason = ?,
			lifecycle_stage = ?, sla_hours = ?, current_owner = ?, title = ?, description = ?,
			submitter_name = ?, location = ?, funding_source = ?, updated_at = ?
		WHERE id = ?`,
		string(sig.Type), string(sig.Status), string(sig.Urgency),
		nullFloat(sig.Amount), nullFloat(sig.Confidence), sig.FlagReason,
		sig.LifecycleStage, nullInt(sig.SLAHours), sig.CurrentOwner, sig.Title, sig.Description,
		sig.SubmitterName, sig.Location, sig.FundingSource,
		s.now().UTC().Format(time.RFC3339Nano), sig.ID,
	)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("update signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return triage.ErrNotFound
	}
	return nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation.name", op),
	))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSignal returns sql.ErrNoRows unwrapped so callers can detect a miss.
func scanSignal(row scanner) (*signal.Signal, error) {
	var (
		sig        signal.Signal
		typ        string
		status     string
		urgency    string
		amount     sql.NullFloat64
		confidence sql.NullFloat64
		slaHours   sql.NullInt64
		createdAt  string
	)

	err := row.Scan(
		&sig.ID, &sig.Number, &typ, &status, &urgency, &amount, &confidence, &sig.FlagReason,
		&sig.LifecycleStage, &slaHours, &sig.CurrentOwner, &sig.Title, &sig.Description,
		&sig.SubmitterName, &sig.Location, &sig.FundingSource, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	sig.Type = signal.Type(typ)
	sig.Status = signal.Status(status)
	sig.Urgency = signal.Urgency(urgency)
	if amount.Valid {
		sig.Amount = &amount.Float64
	}
	if confidence.Valid {
		sig.Confidence = &confidence.Float64
	}
	if slaHours.Valid {
		h := int(slaHours.Int64)
		sig.SLAHours = &h
	}
	// an unparsable timestamp leaves CreatedAt zero, which the engine tolerates
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sig.CreatedAt = t
	}
	return &sig, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
