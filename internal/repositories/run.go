package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Track statuses stored in sync_outcome_tracks.
const (
	statusAdded        = "added"
	statusAddFailed    = "add_failed"
	statusNotFound     = "not_found"
	statusSearchFailed = "search_failed"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("sync run not found")

// RunSummary is one row of the run history listing.
type RunSummary struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Playlists  int       `json:"playlists"`
	Added      int       `json:"added"`
	NotFound   int       `json:"not_found"`
	Failed     int       `json:"failed"`
}

// Duration returns how long the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunRepository stores [models.SyncRun] records with their outcomes.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts run, its outcomes, and their tracks in one transaction and returns the run's sequence.
//
// A run without an id is assigned one.
func (r *RunRepository) Create(run *models.SyncRun) (int, error) {
	if run == nil {
		return 0, fmt.Errorf("%w: nil run", shared.ErrInvalidArgument)
	}
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}

	sequence, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return 0, fmt.Errorf("failed to generate sequence: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sync_runs (id, sequence, dry_run, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, sequence, run.DryRun, run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	for i, outcome := range run.Outcomes {
		if err := insertOutcome(tx, run.ID, i, outcome); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	return sequence, nil
}

func insertOutcome(tx *sql.Tx, runID string, position int, o *models.SyncOutcome) error {
	outcomeID := shared.GenerateID()

	_, err := tx.Exec(`
		INSERT INTO sync_outcomes (
			id, run_id, position, source, destination_id, name, created,
			source_count, existing_count, skipped_count, added_count,
			batch_count, failed, error
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		outcomeID, runID, position, o.Pair.Source, o.DestinationID, o.Pair.Name, o.Created,
		o.SourceCount, o.ExistingCount, o.SkippedCount, o.AddedCount,
		len(o.Batches), o.Failed, o.ErrorMessage(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome %d: %w", position, err)
	}

	groups := []struct {
		status string
		tracks []models.TrackRecord
	}{
		{statusAdded, o.AddedTracks},
		{statusAddFailed, o.FailedTracks},
		{statusNotFound, o.NotFound},
		{statusSearchFailed, o.SearchFailed},
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sync_outcome_tracks (outcome_id, position, status, title, artists, catalog_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare track insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range groups {
		for i, tr := range g.tracks {
			artists, err := json.Marshal(tr.Artists)
			if err != nil {
				return fmt.Errorf("failed to encode artists: %w", err)
			}
			if _, err := stmt.Exec(outcomeID, i, g.status, tr.Title, string(artists), tr.CatalogID); err != nil {
				return fmt.Errorf("failed to insert %s track: %w", g.status, err)
			}
		}
	}

	return nil
}

// Get retrieves a run with its outcomes and tracks.
func (r *RunRepository) Get(id string) (*models.SyncRun, error) {
	run := &models.SyncRun{ID: id}

	err := r.db.QueryRow(`
		SELECT dry_run, started_at, finished_at FROM sync_runs WHERE id = ?
	`, id).Scan(&run.DryRun, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT
			id, source, destination_id, name, created, source_count,
			existing_count, skipped_count, added_count, failed, error
		FROM sync_outcomes
		WHERE run_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}

	var outcomeIDs []string
	for rows.Next() {
		var (
			outcomeID string
			errMsg    string
			o         = &models.SyncOutcome{DryRun: run.DryRun}
		)
		if err := rows.Scan(
			&outcomeID, &o.Pair.Source, &o.DestinationID, &o.Pair.Name, &o.Created, &o.SourceCount,
			&o.ExistingCount, &o.SkippedCount, &o.AddedCount, &o.Failed, &errMsg,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Pair.DestinationID = o.DestinationID
		if errMsg != "" {
			o.Err = errors.New(errMsg)
		}
		outcomeIDs = append(outcomeIDs, outcomeID)
		run.Outcomes = append(run.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	rows.Close()

	for i, outcomeID := range outcomeIDs {
		if err := r.loadTracks(outcomeID, run.Outcomes[i]); err != nil {
			return nil, err
		}
	}

	return run, nil
}

func (r *RunRepository) loadTracks(outcomeID string, o *models.SyncOutcome) error {
	rows, err := r.db.Query(`
		SELECT status, title, artists, catalog_id
		FROM sync_outcome_tracks
		WHERE outcome_id = ?
		ORDER BY status, position
	`, outcomeID)
	if err != nil {
		return fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, artists string
		var tr models.TrackRecord
		if err := rows.Scan(&status, &tr.Title, &artists, &tr.CatalogID); err != nil {
			return fmt.Errorf("failed to scan track: %w", err)
		}
		if err := json.Unmarshal([]byte(artists), &tr.Artists); err != nil {
			return fmt.Errorf("failed to decode artists: %w", err)
		}

		switch status {
		case statusAdded:
			o.AddedTracks = append(o.AddedTracks, tr)
		case statusAddFailed:
			o.FailedTracks = append(o.FailedTracks, tr)
		case statusNotFound:
			o.NotFound = append(o.NotFound, tr)
		case statusSearchFailed:
			o.SearchFailed = append(o.SearchFailed, tr)
		}
	}

	return rows.Err()
}

// List returns the most recent runs first, at most limit of them (all when limit <= 0).
func (r *RunRepository) List(limit int) ([]*RunSummary, error) {
	query := `
		SELECT
			r.id, r.sequence, r.dry_run, r.started_at, r.finished_at,
			COUNT(o.id),
			COALESCE(SUM(o.added_count), 0),
			COALESCE(SUM(nf.n), 0),
			COALESCE(SUM(o.failed), 0)
		FROM sync_runs r
		LEFT JOIN sync_outcomes o ON o.run_id = r.id
		LEFT JOIN (
			SELECT outcome_id, COUNT(*) AS n
			FROM sync_outcome_tracks
			WHERE status = 'not_found'
			GROUP BY outcome_id
		) nf ON nf.outcome_id = o.id
		GROUP BY r.id
		ORDER BY r.sequence DESC
	`

	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []*RunSummary
	for rows.Next() {
		s := &RunSummary{}
		if err := rows.Scan(
			&s.ID, &s.Sequence, &s.DryRun, &s.StartedAt, &s.FinishedAt,
			&s.Playlists, &s.Added, &s.NotFound, &s.Failed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return summaries, nil
}

// Delete removes a run and everything recorded under it.
func (r *RunRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM sync_outcome_tracks
		WHERE outcome_id IN (SELECT id FROM sync_outcomes WHERE run_id = ?)
	`, id); err != nil {
		return fmt.Errorf("failed to delete tracks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM sync_outcomes WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete outcomes: %w", err)
	}

	result, err := tx.Exec("DELETE FROM sync_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return tx.Commit()
}
