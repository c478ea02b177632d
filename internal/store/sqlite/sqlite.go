package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pedronipalhares/imea/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertRows writes observations keyed on the deduplication key, so a
// re-run refines existing observations in place.
func (s *Store) UpsertRows(ctx context.Context, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crop_progress (
			date, year, month, crop, activity, state, season, percentage, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, crop, activity, state, season)
		DO UPDATE SET
			percentage = excluded.percentage,
			ingested_at = excluded.ingested_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		_, err = stmt.ExecContext(
			ctx,
			row.Date.Format("2006-01-02"),
			row.Year,
			row.Month,
			string(row.Crop),
			string(row.Activity),
			row.State,
			row.Season,
			row.Percentage,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ListRows loads every stored observation, ordered by date.
func (s *Store) ListRows(ctx context.Context) ([]model.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, year, month, crop, activity, state, season, percentage
		FROM crop_progress
		ORDER BY date, crop, activity
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Row, 0)
	for rows.Next() {
		var row model.Row
		var date, crop, activity string
		if err := rows.Scan(&date, &row.Year, &row.Month, &crop, &activity, &row.State, &row.Season, &row.Percentage); err != nil {
			return nil, err
		}
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("sqlite: bad stored date %q: %w", date, err)
		}
		row.Date = parsed
		row.Crop = model.Crop(crop)
		row.Activity = model.Activity(activity)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) UpsertQuotes(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO current_quotes (
			chain, locality, season, value, variation, unit, published_at, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain, locality, season, published_at)
		DO UPDATE SET
			value = excluded.value,
			variation = excluded.variation,
			unit = excluded.unit,
			ingested_at = excluded.ingested_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, quote := range quotes {
		var publishedAt string
		if !quote.PublishedAt.IsZero() {
			publishedAt = quote.PublishedAt.Format("2006-01-02")
		}
		_, err = stmt.ExecContext(
			ctx,
			string(quote.Chain),
			quote.Locality,
			quote.Season,
			quote.Value,
			quote.Variation,
			quote.Unit,
			publishedAt,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS crop_progress (
			date TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			crop TEXT NOT NULL,
			activity TEXT NOT NULL,
			state TEXT NOT NULL,
			season TEXT NOT NULL,
			percentage REAL NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (date, crop, activity, state, season)
		);`,
		`CREATE TABLE IF NOT EXISTS current_quotes (
			chain TEXT NOT NULL,
			locality TEXT NOT NULL,
			season TEXT NOT NULL,
			value REAL NOT NULL,
			variation REAL,
			unit TEXT,
			published_at TEXT NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (chain, locality, season, published_at)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
