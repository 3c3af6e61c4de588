package storage

import "github.com/dayline/dayline/internal/status"

// CountJobsByStatus returns how many jobs sit in each queue status.
func (s *Store) CountJobsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// CountEntitiesByStatus returns, per entity kind, how many rows sit in each
// processing status. Kinds are "note", "task", and "activity".
func (s *Store) CountEntitiesByStatus() (map[string]map[status.Status]int, error) {
	rows, err := s.db.Query(`
		SELECT 'note' AS kind, processing_status, COUNT(*) FROM notes GROUP BY processing_status
		UNION ALL
		SELECT 'task', processing_status, COUNT(*) FROM tasks GROUP BY processing_status
		UNION ALL
		SELECT 'activity', processing_status, COUNT(*) FROM activities GROUP BY processing_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[status.Status]int)
	for rows.Next() {
		var kind, rawStatus string
		var n int
		if err := rows.Scan(&kind, &rawStatus, &n); err != nil {
			return nil, err
		}
		st, err := status.Parse(rawStatus)
		if err != nil {
			return nil, err
		}
		if counts[kind] == nil {
			counts[kind] = make(map[status.Status]int)
		}
		counts[kind][st] = n
	}
	return counts, rows.Err()
}
