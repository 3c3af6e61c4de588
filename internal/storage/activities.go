package storage

import (
	"database/sql"
	"time"

	"github.com/dayline/dayline/internal/status"
)

const activityColumns = `id, name, schema_json, processing_status, enrichment_json, processed_at, created_at, updated_at`

// CreateActivity inserts a new activity tracker. A zero ProcessingStatus
// defaults to NOT_PROCESSED; zero timestamps default to now.
func (s *Store) CreateActivity(a Activity) error {
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = status.Default()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	if a.SchemaJSON == "" {
		a.SchemaJSON = "{}"
	}

	_, err := s.db.Exec(`
		INSERT INTO activities (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.SchemaJSON, string(a.ProcessingStatus),
		nullStr(a.EnrichmentJSON), nullTime(a.ProcessedAt),
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt),
	)
	return err
}

// GetActivity returns the activity with the given id, or ErrNotFound.
func (s *Store) GetActivity(id string) (Activity, error) {
	row := s.db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return Activity{}, ErrNotFound
	}
	if err != nil {
		return Activity{}, err
	}
	return a, nil
}

// SaveActivity persists in-place mutations, including processing_status,
// enrichment_json, and processed_at. updated_at is refreshed.
func (s *Store) SaveActivity(a Activity) error {
	res, err := s.db.Exec(`
		UPDATE activities
		SET name = ?, schema_json = ?, processing_status = ?, enrichment_json = ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.SchemaJSON, string(a.ProcessingStatus),
		nullStr(a.EnrichmentJSON), nullTime(a.ProcessedAt), fmtTime(time.Now()), a.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListActivities returns up to limit activities, most recent first.
func (s *Store) ListActivities(limit int) ([]Activity, error) {
	rows, err := s.db.Query(`
		SELECT `+activityColumns+` FROM activities ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectActivities(rows)
}

// ListActivitiesByStatus returns up to limit activities in the given
// processing status, least recently updated first.
func (s *Store) ListActivitiesByStatus(st status.Status, limit int) ([]Activity, error) {
	rows, err := s.db.Query(`
		SELECT `+activityColumns+` FROM activities
		WHERE processing_status = ? ORDER BY updated_at ASC LIMIT ?`,
		string(st), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectActivities(rows)
}

// DeleteActivity removes the activity with the given id, or returns ErrNotFound.
func (s *Store) DeleteActivity(id string) error {
	res, err := s.db.Exec(`DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanActivity(row rowScanner) (Activity, error) {
	var a Activity
	var rawStatus, createdAt, updatedAt string
	var enrichment, processedAt sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &a.SchemaJSON, &rawStatus,
		&enrichment, &processedAt, &createdAt, &updatedAt); err != nil {
		return Activity{}, err
	}

	st, err := status.Parse(rawStatus)
	if err != nil {
		return Activity{}, err
	}
	a.ProcessingStatus = st
	a.EnrichmentJSON = enrichment.String

	if a.ProcessedAt, err = parseTimePtr(processedAt, "processed_at"); err != nil {
		return Activity{}, err
	}
	if a.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return Activity{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return Activity{}, err
	}
	return a, nil
}

func collectActivities(rows *sql.Rows) ([]Activity, error) {
	var results []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}
