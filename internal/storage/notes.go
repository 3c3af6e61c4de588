package storage

import (
	"database/sql"
	"time"

	"github.com/dayline/dayline/internal/status"
)

const noteColumns = `id, title, content, tags, processing_status, enrichment_json, processed_at, created_at, updated_at`

// CreateNote inserts a new note. A zero ProcessingStatus defaults to
// NOT_PROCESSED; zero timestamps default to now.
func (s *Store) CreateNote(n Note) error {
	if n.ProcessingStatus == "" {
		n.ProcessingStatus = status.Default()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	if n.Tags == "" {
		n.Tags = "[]"
	}

	_, err := s.db.Exec(`
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, n.Tags, string(n.ProcessingStatus),
		nullStr(n.EnrichmentJSON), nullTime(n.ProcessedAt),
		fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt),
	)
	return err
}

// GetNote returns the note with the given id, or ErrNotFound.
func (s *Store) GetNote(id string) (Note, error) {
	row := s.db.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, err
	}
	return n, nil
}

// SaveNote persists in-place mutations, including processing_status,
// enrichment_json, and processed_at. updated_at is refreshed.
func (s *Store) SaveNote(n Note) error {
	res, err := s.db.Exec(`
		UPDATE notes
		SET title = ?, content = ?, tags = ?, processing_status = ?, enrichment_json = ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		n.Title, n.Content, n.Tags, string(n.ProcessingStatus),
		nullStr(n.EnrichmentJSON), nullTime(n.ProcessedAt), fmtTime(time.Now()), n.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListNotes returns up to limit notes, most recent first.
func (s *Store) ListNotes(limit int) ([]Note, error) {
	rows, err := s.db.Query(`
		SELECT `+noteColumns+` FROM notes ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotes(rows)
}

// ListNotesByStatus returns up to limit notes in the given processing status,
// least recently updated first (so the sweeper sees the stalest entries).
func (s *Store) ListNotesByStatus(st status.Status, limit int) ([]Note, error) {
	rows, err := s.db.Query(`
		SELECT `+noteColumns+` FROM notes
		WHERE processing_status = ? ORDER BY updated_at ASC LIMIT ?`,
		string(st), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotes(rows)
}

// RecentCompletedNotes returns the most recently enriched notes, newest
// first.
func (s *Store) RecentCompletedNotes(limit int) ([]Note, error) {
	rows, err := s.db.Query(`
		SELECT `+noteColumns+` FROM notes
		WHERE processing_status = ? ORDER BY processed_at DESC LIMIT ?`,
		string(status.Completed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotes(rows)
}

// DeleteNote removes the note with the given id, or returns ErrNotFound.
func (s *Store) DeleteNote(id string) error {
	res, err := s.db.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanNote(row rowScanner) (Note, error) {
	var n Note
	var rawStatus, createdAt, updatedAt string
	var enrichment, processedAt sql.NullString
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Tags, &rawStatus,
		&enrichment, &processedAt, &createdAt, &updatedAt); err != nil {
		return Note{}, err
	}

	st, err := status.Parse(rawStatus)
	if err != nil {
		return Note{}, err
	}
	n.ProcessingStatus = st
	n.EnrichmentJSON = enrichment.String

	if n.ProcessedAt, err = parseTimePtr(processedAt, "processed_at"); err != nil {
		return Note{}, err
	}
	if n.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return Note{}, err
	}
	if n.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return Note{}, err
	}
	return n, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	var results []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
