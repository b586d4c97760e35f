package storage

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/defindex/internal/indexer"
)

// ReadDefinitions returns the records of one run in emission order, or of
// every run in insertion order when runID is empty.
func ReadDefinitions(db *sql.DB, runID string) ([]indexer.Record, error) {
	query := sq.Select("name", "file", "line", `"column"`).From("definitions")
	if runID != "" {
		query = query.Where(sq.Eq{"run_id": runID}).OrderBy("seq")
	} else {
		query = query.OrderBy("id")
	}

	rows, err := query.RunWith(db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer rows.Close()

	var records []indexer.Record
	for rows.Next() {
		var rec indexer.Record
		if err := rows.Scan(&rec.Name, &rec.File, &rec.Line, &rec.Column); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate definitions: %w", err)
	}
	return records, nil
}

// ListRuns returns run ids in start order.
func ListRuns(db *sql.DB) ([]string, error) {
	rows, err := sq.Select("run_id").From("runs").OrderBy("rowid").RunWith(db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}
