package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id        TEXT PRIMARY KEY,
	training_id       TEXT NOT NULL DEFAULT '',
	subject_id        TEXT NOT NULL,
	build_name        TEXT NOT NULL,
	build_type        TEXT NOT NULL,
	build_version     TEXT NOT NULL DEFAULT '',
	container_id      TEXT NOT NULL,
	start_time        INTEGER NOT NULL,
	end_time          INTEGER,
	total_duration    REAL NOT NULL DEFAULT 0,
	completion_status TEXT NOT NULL,
	interactions      TEXT NOT NULL DEFAULT '[]',
	summary           TEXT NOT NULL DEFAULT '{}',
	revision          INTEGER NOT NULL DEFAULT 1,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_subject ON sessions(subject_id);
CREATE INDEX IF NOT EXISTS idx_sessions_build ON sessions(build_name, build_type, build_version);
CREATE INDEX IF NOT EXISTS idx_sessions_container ON sessions(container_id);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);

CREATE TABLE IF NOT EXISTS progress (
	id           TEXT PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	build_name   TEXT NOT NULL,
	build_type   TEXT NOT NULL,
	container_id TEXT NOT NULL,
	progress     INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER,
	updated_at   INTEGER NOT NULL,
	UNIQUE(subject_id, build_name, build_type, container_id)
);

CREATE TABLE IF NOT EXISTS assignments (
	id           TEXT PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	build_name   TEXT NOT NULL,
	build_type   TEXT NOT NULL,
	container_id TEXT NOT NULL,
	completed    INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER,
	created_at   INTEGER NOT NULL,
	UNIQUE(subject_id, build_name, build_type, container_id)
);

CREATE TABLE IF NOT EXISTS session_tags (
	session_id TEXT NOT NULL,
	tag_id     TEXT NOT NULL,
	PRIMARY KEY (session_id, tag_id)
);
`

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// so store methods run unchanged inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore provides SQLite-backed persistence for telemetry state.
type SQLiteStore struct {
	sqlDB *sql.DB
	q     querier

	busyTimeout  time.Duration
	maxOpenConns int
}

// Open opens a telemetry store at the provided path, creating the
// schema on first use.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	store := &SQLiteStore{
		busyTimeout:  5 * time.Second,
		maxOpenConns: 4,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	cleanPath := filepath.Clean(path)
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_pragma=foreign_keys(ON)",
		cleanPath, store.busyTimeout.Milliseconds())
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(store.maxOpenConns)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	store.sqlDB = sqlDB
	store.q = sqlDB
	return store, nil
}

// Close closes the underlying SQLite database. Nil-safe so callers can
// defer it in all startup paths.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Transact runs fn inside a single transaction. Calling Transact on a
// store already bound to a transaction reuses that transaction.
func (s *SQLiteStore) Transact(ctx context.Context, fn func(Store) error) error {
	if s.sqlDB == nil {
		return fn(s)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("begin transaction: %w", err)
	}
	scoped := &SQLiteStore{q: tx, busyTimeout: s.busyTimeout}
	if err := fn(scoped); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value time.Time) sql.NullInt64 {
	if value.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return fromMillis(value.Int64)
}

const sessionColumns = `session_id, training_id, subject_id, build_name, build_type, build_version,
	container_id, start_time, end_time, total_duration, completion_status, interactions, summary,
	revision, created_at, updated_at`

// UpsertSession inserts the session or updates the mutable fields of the
// row with the same session id. The update never touches identity columns
// and never replaces a terminal status with IN_PROGRESS, so a late or
// replayed progress snapshot cannot regress a finished session. The whole
// decision runs in one statement to stay safe under concurrent ingests.
func (s *SQLiteStore) UpsertSession(ctx context.Context, rec model.SessionRecord) (UpsertResult, error) {
	start := time.Now()

	interactions, err := json.Marshal(rec.Interactions)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("encode interactions: %w", err)
	}
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("encode summary: %w", err)
	}

	now := toMillis(time.Now())
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			end_time       = excluded.end_time,
			total_duration = excluded.total_duration,
			completion_status = CASE
				WHEN sessions.completion_status IN ('COMPLETED', 'ABANDONED', 'FAILED')
					AND excluded.completion_status = 'IN_PROGRESS'
				THEN sessions.completion_status
				ELSE excluded.completion_status
			END,
			interactions = excluded.interactions,
			summary      = excluded.summary,
			revision     = sessions.revision + 1,
			updated_at   = excluded.updated_at
		RETURNING `+sessionColumns,
		rec.SessionID, rec.TrainingID, rec.SubjectID,
		rec.Build.Name, rec.Build.Type, rec.Build.Version, rec.Build.ContainerID,
		toMillis(rec.StartTime), toNullMillis(rec.EndTime), rec.TotalDuration,
		string(rec.CompletionStatus), string(interactions), string(summary),
		now, now,
	)

	stored, revision, err := scanSession(row)
	if err != nil {
		metrics.RecordStoreError()
		return UpsertResult{}, fmt.Errorf("upsert session %s: %w", rec.SessionID, err)
	}

	metrics.RecordStoreUpsertLatency(float64(time.Since(start).Milliseconds()))
	return UpsertResult{
		Created: revision == 1,
		Session: stored,
	}, nil
}

// GetSession returns the session with the given id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (model.SessionRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	rec, _, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionRecord{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError()
		return model.SessionRecord{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return rec, nil
}

// ListSessions returns sessions matching the filter ordered by start
// time descending, with session id as a deterministic tie-breaker.
func (s *SQLiteStore) ListSessions(ctx context.Context, f types.SessionFilter) ([]model.SessionRecord, error) {
	start := time.Now()
	f = f.Normalize(0)

	where, args := filterClauses(f)
	query := `SELECT ` + sessionColumns + ` FROM sessions` + where +
		` ORDER BY start_time DESC, session_id ASC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.SessionRecord, 0, f.Limit)
	for rows.Next() {
		rec, _, err := scanSession(rows)
		if err != nil {
			metrics.RecordStoreError()
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("read session rows: %w", err)
	}

	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return sessions, nil
}

// CountSessions returns the number of sessions matching the filter.
func (s *SQLiteStore) CountSessions(ctx context.Context, f types.SessionFilter) (int, error) {
	where, args := filterClauses(f)
	var count int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+where, args...).Scan(&count); err != nil {
		metrics.RecordStoreError()
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// UpsertProgress inserts or refreshes the progress row keyed by subject
// and build identity. Progress is monotonic and the completion timestamp
// only moves forward, so replayed completions are harmless.
func (s *SQLiteStore) UpsertProgress(ctx context.Context, rec ProgressRecord) error {
	start := time.Now()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO progress (id, subject_id, build_name, build_type, container_id, progress, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, build_name, build_type, container_id) DO UPDATE SET
			progress     = MAX(progress.progress, excluded.progress),
			completed_at = CASE
				WHEN excluded.completed_at IS NULL THEN progress.completed_at
				WHEN progress.completed_at IS NULL OR excluded.completed_at >= progress.completed_at
				THEN excluded.completed_at
				ELSE progress.completed_at
			END,
			updated_at = excluded.updated_at`,
		rec.ID, rec.SubjectID, rec.Build.Name, rec.Build.Type, rec.Build.ContainerID,
		rec.Progress, toNullMillis(rec.CompletedAt), toMillis(time.Now()),
	)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("upsert progress for %s: %w", rec.SubjectID, err)
	}
	metrics.RecordStoreUpsertLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// GetProgress returns the progress row for a subject and build.
func (s *SQLiteStore) GetProgress(ctx context.Context, subjectID string, build model.BuildIdentity) (ProgressRecord, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, subject_id, build_name, build_type, container_id, progress, completed_at, updated_at
		FROM progress
		WHERE subject_id = ? AND build_name = ? AND build_type = ? AND container_id = ?`,
		subjectID, build.Name, build.Type, build.ContainerID,
	)

	var rec ProgressRecord
	var completedAt sql.NullInt64
	var updatedAt int64
	err := row.Scan(&rec.ID, &rec.SubjectID, &rec.Build.Name, &rec.Build.Type,
		&rec.Build.ContainerID, &rec.Progress, &completedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProgressRecord{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError()
		return ProgressRecord{}, fmt.Errorf("get progress for %s: %w", subjectID, err)
	}
	rec.CompletedAt = fromNullMillis(completedAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// CreateAssignment records a training assignment. Re-creating an
// existing assignment is a no-op.
func (s *SQLiteStore) CreateAssignment(ctx context.Context, rec AssignmentRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO assignments (id, subject_id, build_name, build_type, container_id, completed, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SubjectID, rec.Build.Name, rec.Build.Type, rec.Build.ContainerID,
		rec.Completed, toNullMillis(rec.CompletedAt), toMillis(time.Now()),
	)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("create assignment for %s: %w", rec.SubjectID, err)
	}
	return nil
}

// CompleteAssignment marks the matching assignment completed. Marking an
// already-completed assignment again leaves the original timestamp.
func (s *SQLiteStore) CompleteAssignment(ctx context.Context, subjectID string, build model.BuildIdentity, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE assignments
		SET completed = 1,
		    completed_at = COALESCE(completed_at, ?)
		WHERE subject_id = ? AND build_name = ? AND build_type = ? AND container_id = ?`,
		toMillis(at), subjectID, build.Name, build.Type, build.ContainerID,
	)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("complete assignment for %s: %w", subjectID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete assignment for %s: %w", subjectID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TagSession attaches a tag to a session. Duplicate tags are no-ops.
func (s *SQLiteStore) TagSession(ctx context.Context, sessionID, tagID string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_tags (session_id, tag_id) VALUES (?, ?)`,
		sessionID, tagID,
	)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("tag session %s: %w", sessionID, err)
	}
	return nil
}

// Totals returns the number of stored sessions and progress rows.
func (s *SQLiteStore) Totals(ctx context.Context) (int, int, error) {
	var sessions, progress int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&sessions); err != nil {
		return 0, 0, fmt.Errorf("count sessions: %w", err)
	}
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM progress`).Scan(&progress); err != nil {
		return 0, 0, fmt.Errorf("count progress: %w", err)
	}
	return sessions, progress, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession decodes one sessions row. The returned revision starts at
// 1 on insert and increments on every upsert of the same session id.
func scanSession(row rowScanner) (model.SessionRecord, int64, error) {
	var rec model.SessionRecord
	var startTime, createdAt, updatedAt, revision int64
	var endTime sql.NullInt64
	var status, interactions, summary string

	err := row.Scan(&rec.SessionID, &rec.TrainingID, &rec.SubjectID,
		&rec.Build.Name, &rec.Build.Type, &rec.Build.Version, &rec.Build.ContainerID,
		&startTime, &endTime, &rec.TotalDuration, &status, &interactions, &summary,
		&revision, &createdAt, &updatedAt)
	if err != nil {
		return model.SessionRecord{}, 0, err
	}

	rec.StartTime = fromMillis(startTime)
	rec.EndTime = fromNullMillis(endTime)
	rec.CompletionStatus = model.CompletionStatus(status)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	if err := json.Unmarshal([]byte(interactions), &rec.Interactions); err != nil {
		return model.SessionRecord{}, 0, fmt.Errorf("decode interactions: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
		return model.SessionRecord{}, 0, fmt.Errorf("decode summary: %w", err)
	}
	return rec, revision, nil
}

func filterClauses(f types.SessionFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}

	if f.SubjectID != "" {
		add("subject_id = ?", f.SubjectID)
	}
	if f.BuildName != "" {
		add("build_name = ?", f.BuildName)
	}
	if f.BuildType != "" {
		add("build_type = ?", f.BuildType)
	}
	if f.BuildVersion != "" {
		add("build_version = ?", f.BuildVersion)
	}
	if f.ContainerID != "" {
		add("container_id = ?", f.ContainerID)
	}
	if f.TenantID != "" {
		add("container_id LIKE ?", "org-"+f.TenantID+"%")
	}
	if f.CompletionStatus != "" {
		add("completion_status = ?", string(f.CompletionStatus))
	}
	if f.TagID != "" {
		add("EXISTS (SELECT 1 FROM session_tags t WHERE t.session_id = sessions.session_id AND t.tag_id = ?)", f.TagID)
	}
	if !f.From.IsZero() {
		add("start_time >= ?", toMillis(f.From))
	}
	if !f.To.IsZero() {
		add("start_time <= ?", toMillis(f.To))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
