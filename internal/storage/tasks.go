package storage

import (
	"database/sql"
	"time"

	"github.com/dayline/dayline/internal/status"
)

const taskColumns = `id, title, details, due_at, done, processing_status, enrichment_json, processed_at, created_at, updated_at`

// CreateTask inserts a new task. A zero ProcessingStatus defaults to
// NOT_PROCESSED; zero timestamps default to now.
func (s *Store) CreateTask(t Task) error {
	if t.ProcessingStatus == "" {
		t.ProcessingStatus = status.Default()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Details, nullTime(t.DueAt), boolToInt(t.Done),
		string(t.ProcessingStatus), nullStr(t.EnrichmentJSON), nullTime(t.ProcessedAt),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
	)
	return err
}

// GetTask returns the task with the given id, or ErrNotFound.
func (s *Store) GetTask(id string) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// SaveTask persists in-place mutations, including processing_status,
// enrichment_json, and processed_at. updated_at is refreshed.
func (s *Store) SaveTask(t Task) error {
	res, err := s.db.Exec(`
		UPDATE tasks
		SET title = ?, details = ?, due_at = ?, done = ?, processing_status = ?, enrichment_json = ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Details, nullTime(t.DueAt), boolToInt(t.Done),
		string(t.ProcessingStatus), nullStr(t.EnrichmentJSON), nullTime(t.ProcessedAt),
		fmtTime(time.Now()), t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListTasks returns up to limit tasks. Open tasks sort before done ones,
// then by due date with undated tasks last.
func (s *Store) ListTasks(limit int) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		ORDER BY done ASC, due_at IS NULL, due_at ASC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListTasksByStatus returns up to limit tasks in the given processing status,
// least recently updated first.
func (s *Store) ListTasksByStatus(st status.Status, limit int) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE processing_status = ? ORDER BY updated_at ASC LIMIT ?`,
		string(st), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

// DeleteTask removes the task with the given id, or returns ErrNotFound.
func (s *Store) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var rawStatus, createdAt, updatedAt string
	var done int
	var dueAt, enrichment, processedAt sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Details, &dueAt, &done, &rawStatus,
		&enrichment, &processedAt, &createdAt, &updatedAt); err != nil {
		return Task{}, err
	}

	st, err := status.Parse(rawStatus)
	if err != nil {
		return Task{}, err
	}
	t.ProcessingStatus = st
	t.Done = done != 0
	t.EnrichmentJSON = enrichment.String

	if t.DueAt, err = parseTimePtr(dueAt, "due_at"); err != nil {
		return Task{}, err
	}
	if t.ProcessedAt, err = parseTimePtr(processedAt, "processed_at"); err != nil {
		return Task{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return Task{}, err
	}
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	var results []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
