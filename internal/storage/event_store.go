package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/xray-io/xray/internal/ingest"
)

// ErrNoDatabaseConnection is returned when the event store is constructed
// without a connection.
var ErrNoDatabaseConnection = errors.New("database connection cannot be nil")

// PostgreSQL error codes used for classification.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// EventStore is the PostgreSQL implementation of ingest.Store. Rows live in
// the runs, steps and payloads tables created by migrations 001-003.
type EventStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time check that EventStore implements the domain Store interface.
var _ ingest.Store = (*EventStore)(nil)

// NewEventStore creates a PostgreSQL-backed event store.
//
// Returns ErrNoDatabaseConnection if conn is nil.
func NewEventStore(conn *Connection, logger *slog.Logger) (*EventStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &EventStore{conn: conn, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *EventStore) Close() error {
	return s.conn.Close()
}

// HealthCheck verifies the database is reachable.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// CreateRun inserts a new run row. A duplicate id maps the postgres unique
// violation to ingest.ErrRunExists.
func (s *EventStore) CreateRun(ctx context.Context, run *ingest.Run) error {
	inputSummary, err := marshalJSONB(run.InputSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal input_summary: %w", err)
	}

	metadata, err := marshalJSONB(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, pipeline_name, status, started_at, input_summary, metadata,
			request_id, user_id, environment
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.conn.ExecContext(ctx, query,
		run.ID,
		run.PipelineName,
		run.Status,
		run.StartedAt,
		inputSummary,
		metadata,
		nullString(run.RequestID),
		nullString(run.UserID),
		nullString(run.Environment),
	)
	if err != nil {
		if isPQError(err, pqUniqueViolation) {
			return fmt.Errorf("%w: %s", ingest.ErrRunExists, run.ID)
		}

		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// EndRun applies terminal fields to an existing run atomically.
func (s *EventStore) EndRun(ctx context.Context, id uuid.UUID, end ingest.RunEnd) error {
	outputSummary, err := marshalJSONB(end.OutputSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal output_summary: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, ended_at = $3, output_summary = $4, error_message = $5
		WHERE id = $1
	`

	result, err := s.conn.ExecContext(ctx, query,
		id, end.Status, end.EndedAt, outputSummary, nullString(end.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ingest.ErrRunNotFound, id)
	}

	return nil
}

// CreateStep inserts a new step row. The runs FK maps a postgres foreign key
// violation to ingest.ErrRunNotFound.
func (s *EventStore) CreateStep(ctx context.Context, step *ingest.Step) error {
	inputSummary, err := marshalJSONB(step.InputSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal input_summary: %w", err)
	}

	metadata, err := marshalJSONB(step.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO steps (
			id, run_id, step_name, step_type, step_index, status, started_at,
			input_summary, input_count, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.conn.ExecContext(ctx, query,
		step.ID,
		step.RunID,
		step.StepName,
		step.StepType,
		step.Index,
		step.Status,
		step.StartedAt,
		inputSummary,
		nullInt(step.InputCount),
		metadata,
	)
	if err != nil {
		if isPQError(err, pqForeignKeyViolation) {
			return fmt.Errorf("%w: %s", ingest.ErrRunNotFound, step.RunID)
		}

		return fmt.Errorf("failed to insert step: %w", err)
	}

	return nil
}

// EndStep applies terminal fields to an existing step and returns the step's
// authoritative run id from the updated row.
func (s *EventStore) EndStep(ctx context.Context, id uuid.UUID, end ingest.StepEnd) (uuid.UUID, error) {
	outputSummary, err := marshalJSONB(end.OutputSummary)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal output_summary: %w", err)
	}

	reasoning, err := marshalJSONB(end.Reasoning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal reasoning: %w", err)
	}

	query := `
		UPDATE steps
		SET status = $2, ended_at = $3, duration_ms = $4, output_summary = $5,
		    output_count = $6, reasoning = $7, error_message = $8
		WHERE id = $1
		RETURNING run_id
	`

	var runID uuid.UUID

	err = s.conn.QueryRowContext(ctx, query,
		id,
		end.Status,
		end.EndedAt,
		nullInt64(end.DurationMS),
		outputSummary,
		nullInt(end.OutputCount),
		reasoning,
		nullString(end.ErrorMessage),
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: %s", ingest.ErrStepNotFound, id)
	}

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to update step: %w", err)
	}

	return runID, nil
}

// CreatePayloads inserts payload rows within a single transaction. The whole
// batch succeeds or fails together; callers treat failure as non-fatal.
func (s *EventStore) CreatePayloads(ctx context.Context, payloads []ingest.Payload) error {
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	query := `
		INSERT INTO payloads (ref_id, run_id, step_id, phase, body)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, payload := range payloads {
		body, err := json.Marshal(payload.Body)
		if err != nil {
			return fmt.Errorf("failed to marshal payload %s: %w", payload.RefID, err)
		}

		var stepID any
		if payload.StepID != nil {
			stepID = *payload.StepID
		}

		if _, err := tx.ExecContext(ctx, query,
			payload.RefID, payload.RunID, stepID, payload.Phase, body,
		); err != nil {
			return fmt.Errorf("failed to insert payload %s: %w", payload.RefID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payloads: %w", err)
	}

	return nil
}

// GetRun fetches a run by id.
func (s *EventStore) GetRun(ctx context.Context, id uuid.UUID) (*ingest.Run, error) {
	query := `
		SELECT id, pipeline_name, status, started_at, ended_at,
		       input_summary, output_summary, metadata,
		       request_id, user_id, environment, error_message
		FROM runs
		WHERE id = $1
	`

	var (
		run           ingest.Run
		endedAt       sql.NullTime
		inputSummary  []byte
		outputSummary []byte
		metadata      []byte
		requestID     sql.NullString
		userID        sql.NullString
		environment   sql.NullString
		errorMessage  sql.NullString
	)

	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.PipelineName, &run.Status, &run.StartedAt, &endedAt,
		&inputSummary, &outputSummary, &metadata,
		&requestID, &userID, &environment, &errorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ingest.ErrRunNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}

	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}

	run.RequestID = requestID.String
	run.UserID = userID.String
	run.Environment = environment.String
	run.ErrorMessage = errorMessage.String

	if err := unmarshalJSONB(inputSummary, &run.InputSummary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input_summary: %w", err)
	}

	if err := unmarshalJSONB(outputSummary, &run.OutputSummary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output_summary: %w", err)
	}

	if err := unmarshalJSONB(metadata, &run.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &run, nil
}

// ListSteps returns the steps of a run ordered by index.
func (s *EventStore) ListSteps(ctx context.Context, runID uuid.UUID) ([]*ingest.Step, error) {
	query := `
		SELECT id, run_id, step_name, step_type, step_index, status,
		       started_at, ended_at, duration_ms,
		       input_summary, output_summary, input_count, output_count,
		       reasoning, metadata, error_message
		FROM steps
		WHERE run_id = $1
		ORDER BY step_index
	`

	rows, err := s.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var steps []*ingest.Step

	for rows.Next() {
		var (
			step          ingest.Step
			endedAt       sql.NullTime
			durationMS    sql.NullInt64
			inputSummary  []byte
			outputSummary []byte
			inputCount    sql.NullInt64
			outputCount   sql.NullInt64
			reasoning     []byte
			metadata      []byte
			errorMessage  sql.NullString
		)

		err := rows.Scan(
			&step.ID, &step.RunID, &step.StepName, &step.StepType, &step.Index,
			&step.Status, &step.StartedAt, &endedAt, &durationMS,
			&inputSummary, &outputSummary, &inputCount, &outputCount,
			&reasoning, &metadata, &errorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if endedAt.Valid {
			step.EndedAt = &endedAt.Time
		}

		if durationMS.Valid {
			step.DurationMS = &durationMS.Int64
		}

		if inputCount.Valid {
			count := int(inputCount.Int64)
			step.InputCount = &count
		}

		if outputCount.Valid {
			count := int(outputCount.Int64)
			step.OutputCount = &count
		}

		step.ErrorMessage = errorMessage.String

		if err := unmarshalJSONB(inputSummary, &step.InputSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input_summary: %w", err)
		}

		if err := unmarshalJSONB(outputSummary, &step.OutputSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output_summary: %w", err)
		}

		if err := unmarshalJSONB(reasoning, &step.Reasoning); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasoning: %w", err)
		}

		if err := unmarshalJSONB(metadata, &step.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}

	return steps, nil
}

// isPQError checks whether err is a postgres error with the given code.
func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}

	return false
}

// marshalJSONB converts a map to a JSONB parameter.
// Returns nil (SQL NULL) for nil/empty maps to avoid "invalid input syntax for type json" error.
func marshalJSONB(data map[string]any) (sql.NullString, error) {
	if len(data) == 0 {
		return sql.NullString{Valid: false}, nil // SQL NULL
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return sql.NullString{Valid: false}, err
	}

	return sql.NullString{String: string(jsonBytes), Valid: true}, nil
}

// unmarshalJSONB decodes a JSONB column into dst, leaving dst nil for SQL NULL.
func unmarshalJSONB(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, dst)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: *v, Valid: true}
}
