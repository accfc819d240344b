// Package store persists lookup runs and registry records in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/bizscout/models"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: not found")

// Run kinds.
const (
	KindLookup   = "lookup"
	KindRegistry = "registry"
)

// Run is the header row of a stored run.
type Run struct {
	ID         string
	Kind       string
	Status     string
	Total      int
	Succeeded  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store wraps a SQLite database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: SQLite serialises writers, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertRun(ctx context.Context, tx *sql.Tx, run Run) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, kind, status, total, succeeded, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Status, run.Total, run.Succeeded,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	return err
}

// SaveLookup stores a lookup run and its outcomes. Total, Succeeded and
// Status are derived from outcomes. HTML is stored only if keepHTML is set.
func (s *Store) SaveLookup(ctx context.Context, run Run, outcomes models.BatchResult, keepHTML bool) error {
	run.Kind = KindLookup
	run.Total = len(outcomes)
	run.Succeeded, _ = outcomes.Counts()
	run.Status = outcomes.Status()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return fmt.Errorf("store: insert run: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id = ?`, run.ID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO outcomes (run_id, idx, business_name, success, error_kind, error_message,
			 elapsed_seconds, attempts, context_id, detection_state, detection_reason, html)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, o := range outcomes {
			var state, reason string
			if o.Detection != nil {
				state, reason = string(o.Detection.State), o.Detection.Reason
			}
			html := ""
			if keepHTML {
				html = o.HTML
			}
			if _, err := stmt.ExecContext(ctx,
				run.ID, o.Index, o.Query, o.Success, o.ErrorKind, o.ErrorMessage,
				o.Elapsed, o.Attempts, o.ContextID, state, reason, html,
			); err != nil {
				return fmt.Errorf("store: insert outcome %d: %w", o.Index, err)
			}
		}
		return nil
	})
}

// Run returns the header of a stored run.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	var (
		run               Run
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, total, succeeded, started_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Kind, &run.Status, &run.Total, &run.Succeeded, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	return run, nil
}

// Outcomes returns a lookup run's outcomes in index order.
func (s *Store) Outcomes(ctx context.Context, runID string) (models.BatchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, business_name, success, error_kind, error_message, elapsed_seconds,
		        attempts, context_id, detection_state, detection_reason, html
		 FROM outcomes WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out models.BatchResult
	for rows.Next() {
		var (
			o             models.FetchOutcome
			state, reason string
		)
		if err := rows.Scan(&o.Index, &o.Query, &o.Success, &o.ErrorKind, &o.ErrorMessage,
			&o.Elapsed, &o.Attempts, &o.ContextID, &state, &reason, &o.HTML); err != nil {
			return nil, err
		}
		if state != "" {
			o.Detection = &models.Detection{State: models.DetectionState(state), Reason: reason}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveCorporations stores a registry walk. err is the walk's error, if any;
// it only affects the run status.
func (s *Store) SaveCorporations(ctx context.Context, run Run, act string, corps []models.Corporation, walkErr error) error {
	run.Kind = KindRegistry
	run.Total = len(corps)
	run.Succeeded = len(corps)
	run.Status = "completed"
	if walkErr != nil {
		run.Status = "partial"
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return fmt.Errorf("store: insert run: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO corporations (run_id, act, corporate_name, corporation_number, business_number)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range corps {
			if _, err := stmt.ExecContext(ctx, run.ID, act, c.CorporateName, c.CorporationNumber, c.BusinessNumber); err != nil {
				return fmt.Errorf("store: insert corporation: %w", err)
			}
		}
		return nil
	})
}

// Corporations returns the records of the most recent registry run for act.
func (s *Store) Corporations(ctx context.Context, act string) ([]models.Corporation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.corporate_name, c.corporation_number, c.business_number
		 FROM corporations c
		 WHERE c.act = ? AND c.run_id = (
		     SELECT r.id FROM runs r JOIN corporations c2 ON c2.run_id = r.id
		     WHERE c2.act = ? ORDER BY r.finished_at DESC LIMIT 1)
		 ORDER BY c.rowid`, act, act)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Corporation
	for rows.Next() {
		var c models.Corporation
		if err := rows.Scan(&c.CorporateName, &c.CorporationNumber, &c.BusinessNumber); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
