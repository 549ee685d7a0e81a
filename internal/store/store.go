// Package store keeps finished searches in SQLite. It is a sink: sessions
// hand their terminal snapshot over through the model.Notifier methods and
// the store never feeds anything back into a running search.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadySaved = errors.New("already saved")
	ErrNotFinished  = errors.New("search not finished")
)

const schema = `
CREATE TABLE IF NOT EXISTS searches (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	filters TEXT NOT NULL,
	status TEXT NOT NULL,
	phase TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	processed INTEGER NOT NULL,
	total INTEGER NOT NULL,
	found INTEGER NOT NULL,
	summary TEXT DEFAULT NULL,
	failure_reason TEXT DEFAULT NULL
);
CREATE TABLE IF NOT EXISTS results (
	search_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	item_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (search_id, seq)
);`

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NotifyCompleted stores a completed search with its results.
func (s *Store) NotifyCompleted(ctx context.Context, snap model.Snapshot) error {
	return s.SaveResults(ctx, snap)
}

// NotifyFailed stores a failed search and its failure reason. Results
// collected before the failure are kept.
func (s *Store) NotifyFailed(ctx context.Context, snap model.Snapshot) error {
	return s.SaveResults(ctx, snap)
}

// SaveResults persists a finished search identified by snap.ID. Saving the
// same search twice returns ErrAlreadySaved.
func (s *Store) SaveResults(ctx context.Context, snap model.Snapshot) error {
	if !snap.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotFinished, snap.ID, snap.Status)
	}
	filters, err := json.Marshal(snap.Filters)
	if err != nil {
		return fmt.Errorf("encoding filters: %w", err)
	}
	var summary *string
	if snap.Summary != nil {
		raw, err := json.Marshal(snap.Summary)
		if err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		str := string(raw)
		summary = &str
	}
	var reason *string
	if snap.Error != "" {
		reason = &snap.Error
	}
	completedAt := snap.StartedAt
	if snap.CompletedAt != nil {
		completedAt = *snap.CompletedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, snap.ID)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM searches WHERE id=?`, snap.ID).Scan(&exists)
	switch {
	case err == nil:
		return ErrAlreadySaved
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO searches (
			id, kind, filters, status, phase, started_at, completed_at,
			processed, total, found, summary, failure_reason
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`,
		snap.ID, string(snap.Kind), string(filters), string(snap.Status), string(snap.Phase),
		formatTime(snap.StartedAt), formatTime(completedAt),
		snap.Progress.Processed, snap.Progress.Total, snap.Progress.Found,
		summary, reason,
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results (search_id, seq, item_id, payload) VALUES (?,?,?,?);`)
	if err != nil {
		return fmt.Errorf("preparing sql insert failed: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for i, item := range snap.Results {
		payload := string(item.Payload)
		if payload == "" {
			payload = "null"
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, i, item.ID, payload); err != nil {
			return fmt.Errorf("storing result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	slog.DebugContext(ctx, "search stored", "search_id", snap.ID, "results", len(snap.Results))
	return nil
}

// Get returns the stored search id including its results, ErrNotFound when
// there is none.
func (s *Store) Get(ctx context.Context, id string) (model.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer rollback(ctx, tx, id)

	snap, err := scanSearch(tx.QueryRowContext(ctx, selectSearch+` WHERE id=?`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Snapshot{}, ErrNotFound
	case err != nil:
		return model.Snapshot{}, fmt.Errorf("executing sql query failed: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT item_id, payload FROM results WHERE search_id=? ORDER BY seq`, id)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var item model.ResultItem
		var payload string
		if err := rows.Scan(&item.ID, &payload); err != nil {
			return model.Snapshot{}, fmt.Errorf("scanning result: %w", err)
		}
		if payload != "null" {
			item.Payload = json.RawMessage(payload)
		}
		snap.Results = append(snap.Results, item)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Snapshot{}, fmt.Errorf("committing transaction failed: %w", err)
	}
	return snap, nil
}

// List returns all stored searches, newest first. Results are not loaded.
func (s *Store) List(ctx context.Context) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, selectSearch+` ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ret := []model.Snapshot{}
	for rows.Next() {
		snap, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning search: %w", err)
		}
		ret = append(ret, snap)
	}
	return ret, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, id)

	result, err := tx.ExecContext(ctx, `DELETE FROM searches WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("executing sql delete failed: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching affected rows failed: %w", err)
	}
	if ra != 1 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE search_id=?`, id); err != nil {
		return fmt.Errorf("executing sql delete failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

const selectSearch = `SELECT id, kind, filters, status, phase, started_at, completed_at,
	processed, total, found, summary, failure_reason FROM searches`

type scanner interface {
	Scan(dest ...any) error
}

func scanSearch(row scanner) (model.Snapshot, error) {
	var (
		snap                   model.Snapshot
		filters                string
		startedAt, completedAt string
		summary, reason        *string
	)
	err := row.Scan(
		&snap.ID,
		&snap.Kind,
		&filters,
		&snap.Status,
		&snap.Phase,
		&startedAt,
		&completedAt,
		&snap.Progress.Processed,
		&snap.Progress.Total,
		&snap.Progress.Found,
		&summary,
		&reason,
	)
	if err != nil {
		return model.Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(filters), &snap.Filters); err != nil {
		return model.Snapshot{}, fmt.Errorf("decoding filters: %w", err)
	}
	if snap.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return model.Snapshot{}, fmt.Errorf("decoding started_at: %w", err)
	}
	ts, err := time.Parse(timeLayout, completedAt)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("decoding completed_at: %w", err)
	}
	snap.CompletedAt = &ts
	if summary != nil {
		snap.Summary = &model.Summary{}
		if err := json.Unmarshal([]byte(*summary), snap.Summary); err != nil {
			return model.Snapshot{}, fmt.Errorf("decoding summary: %w", err)
		}
	}
	if reason != nil {
		snap.Error = *reason
	}
	snap.Results = []model.ResultItem{}
	return snap, nil
}

// fixed width, so the text columns sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func rollback(ctx context.Context, tx *sql.Tx, id string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("search_id", id))
	}
}
