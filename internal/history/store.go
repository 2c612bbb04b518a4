// Package history records job runs in sqlite so that recent outcomes survive
// restarts and can be inspected over the admin API.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhruvv90/xnode-scheduler/internal/platform/sqlite"
	"github.com/dhruvv90/xnode-scheduler/internal/shared"
	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DefaultLimit = 20
	MaxLimit     = 500

	recordTimeout = 2 * time.Second
)

// Run is one finished invocation of a job's work unit.
type Run struct {
	ID        int64
	JobID     string
	StartedAt time.Time
	Duration  time.Duration
	Err       string
	Panicked  bool
}

// Failed reports whether the run ended with an error.
func (r Run) Failed() bool { return r.Err != "" }

// Store persists runs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the history database at path and brings its schema
// up to date. ":memory:" gives a private in-memory store.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	if path == ":memory:" {
		db, err = sqlite.OpenInMemory(ctx)
	} else {
		db, err = sqlite.Open(ctx, path)
	}
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	if err := sqlite.ApplyMigrations(db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return New(db, logger), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "history"), now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished run.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.JobID == "" {
		return shared.MarkKind(errors.New("history: empty job id"), shared.KindValidation)
	}
	var errText sql.NullString
	if r.Err != "" {
		errText = sql.NullString{String: r.Err, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs (job_id, started_at, duration_us, error, panicked) VALUES (?, ?, ?, ?, ?)`,
		r.JobID, r.StartedAt.UnixMilli(), r.Duration.Microseconds(), errText, r.Panicked,
	)
	if err != nil {
		return shared.MarkKind(fmt.Errorf("record run of %s: %w", r.JobID, err), shared.KindDependencyFailure)
	}
	return nil
}

// Recent returns up to limit runs of jobID, newest first. A non-positive
// limit means DefaultLimit; limits above MaxLimit are clamped.
func (s *Store) Recent(ctx context.Context, jobID string, limit int) ([]Run, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, started_at, duration_us, error, panicked
		   FROM job_runs
		  WHERE job_id = ?
		  ORDER BY started_at DESC, id DESC
		  LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("query runs of %s: %w", jobID, err), shared.KindDependencyFailure)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			r          Run
			startedMs  int64
			durationUs int64
			errText    sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.JobID, &startedMs, &durationUs, &errText, &r.Panicked); err != nil {
			return nil, shared.MarkKind(fmt.Errorf("scan run: %w", err), shared.KindDependencyFailure)
		}
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		r.Duration = time.Duration(durationUs) * time.Microsecond
		r.Err = errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.MarkKind(fmt.Errorf("iterate runs: %w", err), shared.KindDependencyFailure)
	}
	return runs, nil
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_runs WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, shared.MarkKind(fmt.Errorf("prune runs: %w", err), shared.KindDependencyFailure)
	}
	return res.RowsAffected()
}

// Hooks returns scheduler hooks that record every finished run. Storage
// failures are logged and never reach the job.
func (s *Store) Hooks() scheduler.Hooks {
	return scheduler.Hooks{
		OnRunFinish: func(jobID string, d time.Duration, err error) {
			r := Run{JobID: jobID, StartedAt: s.now().Add(-d), Duration: d}
			if err != nil {
				r.Err = err.Error()
				var re *scheduler.RunError
				if errors.As(err, &re) {
					r.Err = re.Err.Error()
					r.Panicked = re.Panicked
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if rerr := s.Record(ctx, r); rerr != nil {
				s.logger.Warn("failed to record run", "job", jobID, "error", rerr)
			}
		},
	}
}

// PruneJob returns a work unit that drops runs older than retention.
func (s *Store) PruneJob(retention time.Duration) scheduler.AsyncFunc {
	return func(ctx context.Context) error {
		n, err := s.Prune(ctx, s.now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("pruned job runs", "count", n, "retention", retention)
		}
		return nil
	}
}
