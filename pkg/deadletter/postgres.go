package deadletter

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/eduforge/taskq/pkg/pgconn"
	"github.com/eduforge/taskq/pkg/task"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore persists dead letters in PostgreSQL so operators can inspect
// them with plain SQL. Retention is enforced by the Purge sweep, not by the
// database.
type PostgresStore struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewPostgresStore creates a Postgres-backed dead letter store. A non-positive
// retention falls back to DefaultRetention. Call Migrate before first use.
func NewPostgresStore(pool *pgxpool.Pool, retention time.Duration) *PostgresStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PostgresStore{pool: pool, retention: retention}
}

// Migrate applies the embedded schema migrations. goose requires a
// database/sql handle, so the pgx pool is bridged through stdlib; the wrapper
// shares the underlying connections and is closed after the run.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply dead letter migrations: %w", err)
	}
	return nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, inv *task.Invocation, reason string) (uuid.UUID, error) {
	if inv == nil {
		return uuid.UUID{}, ErrNilInvocation
	}

	now := time.Now()
	id := uuid.New()

	snapshot, err := json.Marshal(inv)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to marshal invocation snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO dead_letters (id, task_name, queue, tenant_id, invocation, reason, recorded_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, inv.TaskName, inv.Queue, inv.TenantID, snapshot, reason, now, now.Add(s.retention),
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to insert dead letter record: %w", err)
	}

	return id, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, invocation, reason, recorded_at, expires_at
		FROM dead_letters WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if pgconn.IsNotFound(err) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dead letter record %s: %w", id, err)
	}
	return rec, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*Record, error) {
	var (
		conds []string
		args  []any
	)
	addCond := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Queue != "" {
		addCond("queue = $%d", filter.Queue)
	}
	if filter.TaskName != "" {
		addCond("task_name = $%d", filter.TaskName)
	}
	if filter.TenantID != (uuid.UUID{}) {
		addCond("tenant_id = $%d", filter.TenantID)
	}

	query := `SELECT id, invocation, reason, recorded_at, expires_at FROM dead_letters`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY recorded_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Purge implements Store.
func (s *PostgresStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letters WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letter records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dead letter records: %w", err)
	}
	return n, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec      Record
		snapshot []byte
	)
	if err := row.Scan(&rec.ID, &snapshot, &rec.Reason, &rec.RecordedAt, &rec.ExpiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &rec.Invocation); err != nil {
		return nil, err
	}
	return &rec, nil
}
