// Package archive keeps every result document produced by a run in a sqlite file, so
// earlier runs against a target can be listed and compared.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	scraper "github.com/koizuka/socialscraper"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	target      TEXT NOT NULL,
	profile_url TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	errors      INTEGER NOT NULL,
	document    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_profile ON runs (profile_url, started_at);
CREATE TABLE IF NOT EXISTS sections (
	run_id  TEXT NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	status  TEXT NOT NULL,
	items   INTEGER NOT NULL,
	omitted INTEGER NOT NULL,
	error   TEXT NOT NULL,
	PRIMARY KEY (run_id, name)
);
`

var ErrNotFound = errors.New("run not found")

type Archive struct {
	db *sql.DB
}

// Open opens or creates the archive at path. ":memory:" gives a throwaway archive.
func Open(path string) (*Archive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("couldn't create directory: %v", filepath.Dir(path))
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// a single connection keeps ":memory:" to one database
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func (archive *Archive) Close() error {
	return archive.db.Close()
}

// Save stores document. Saving the same run twice replaces the earlier copy.
func (archive *Archive) Save(ctx context.Context, document scraper.ResultDocument) error {
	body, err := json.Marshal(document)
	if err != nil {
		return err
	}
	tx, err := archive.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	metadata := document.Metadata
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, metadata.RunID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, target, profile_url, started_at, finished_at, errors, document) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		metadata.RunID, metadata.Target, metadata.ProfileURL,
		metadata.StartedAt.UTC().Format(time.RFC3339Nano), metadata.FinishedAt.UTC().Format(time.RFC3339Nano),
		len(document.Errors), string(body),
	); err != nil {
		return err
	}
	for _, section := range document.Sections() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sections (run_id, name, status, items, omitted, error) VALUES (?, ?, ?, ?, ?, ?)`,
			metadata.RunID, section.Name, string(section.Status), section.Items, section.Omitted, section.Error,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Run is one archived run without its document.
type Run struct {
	RunID      string
	Target     string
	ProfileURL string
	StartedAt  time.Time
	FinishedAt time.Time
	Errors     int
	Sections   []scraper.SectionSummary
}

// List returns the most recent runs first. An empty profileURL lists every target.
func (archive *Archive) List(ctx context.Context, profileURL string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := archive.db.QueryContext(ctx,
		`SELECT run_id, target, profile_url, started_at, finished_at, errors FROM runs
		 WHERE ? = '' OR profile_url = ?
		 ORDER BY started_at DESC, run_id DESC LIMIT ?`,
		profileURL, profileURL, limit)
	if err != nil {
		return nil, err
	}
	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished string
		if err := rows.Scan(&run.RunID, &run.Target, &run.ProfileURL, &started, &finished, &run.Errors); err != nil {
			rows.Close()
			return nil, err
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Sections, err = archive.sections(ctx, runs[i].RunID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (archive *Archive) sections(ctx context.Context, runID string) ([]scraper.SectionSummary, error) {
	rows, err := archive.db.QueryContext(ctx,
		`SELECT name, status, items, omitted, error FROM sections WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sections []scraper.SectionSummary
	for rows.Next() {
		var section scraper.SectionSummary
		var status string
		if err := rows.Scan(&section.Name, &status, &section.Items, &section.Omitted, &section.Error); err != nil {
			return nil, err
		}
		section.Status = scraper.SectionStatus(status)
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

// Load returns the full document of one run.
func (archive *Archive) Load(ctx context.Context, runID string) (scraper.ResultDocument, error) {
	var document scraper.ResultDocument
	var body string
	err := archive.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return document, fmt.Errorf("%v: %w", runID, ErrNotFound)
	}
	if err != nil {
		return document, err
	}
	if err := json.Unmarshal([]byte(body), &document); err != nil {
		return document, fmt.Errorf("%v: %w", runID, err)
	}
	return document, nil
}
