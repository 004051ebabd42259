package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/selection"
)

const createCombined = `
CREATE TABLE IF NOT EXISTS combined (
	type      VARCHAR NOT NULL,
	id        VARCHAR NOT NULL,
	tech      VARCHAR NOT NULL,
	speed     VARCHAR NOT NULL,
	has_0     BIGINT  NOT NULL DEFAULT 0,
	has_1     BIGINT  NOT NULL DEFAULT 0,
	has_2     BIGINT  NOT NULL DEFAULT 0,
	has_3plus BIGINT  NOT NULL DEFAULT 0
)`

// CombinedStore serves the combined provider-count table from DuckDB.
type CombinedStore struct {
	db   *sql.DB
	tech string
}

var _ areasummary.Fetcher = (*CombinedStore)(nil)

// NewCombinedStore wraps conn. Rows are read for the all-technology filter.
func NewCombinedStore(conn *sql.DB) *CombinedStore {
	return &CombinedStore{db: conn, tech: "a"}
}

// Migrate creates the combined table.
func (s *CombinedStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createCombined); err != nil {
		return fmt.Errorf("create combined table: %w", err)
	}
	return nil
}

// Insert adds rows for one geography and technology filter.
func (s *CombinedStore) Insert(ctx context.Context, geo selection.Geography, tech string, rows []areasummary.Counts) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO combined (type, id, tech, speed, has_0, has_1, has_2, has_3plus) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, geo.Type, geo.ID, tech, r.Speed, r.Has0, r.Has1, r.Has2, r.Has3Plus); err != nil {
			return fmt.Errorf("insert %s/%s speed %s: %w", geo.Type, geo.ID, r.Speed, err)
		}
	}
	return tx.Commit()
}

// ImportCSV appends a CSV export of the combined dataset and returns the
// number of rows loaded.
func (s *CombinedStore) ImportCSV(ctx context.Context, path string) (int64, error) {
	q := fmt.Sprintf(`INSERT INTO combined
SELECT type, id, tech, speed, has_0, has_1, has_2, has_3plus
FROM read_csv('%s', header = true, columns = {
	'type': 'VARCHAR', 'id': 'VARCHAR', 'tech': 'VARCHAR', 'speed': 'VARCHAR',
	'has_0': 'BIGINT', 'has_1': 'BIGINT', 'has_2': 'BIGINT', 'has_3plus': 'BIGINT'
})`, strings.ReplaceAll(path, "'", "''"))

	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	return res.RowsAffected()
}

// Fetch returns the rows for geo ordered by numeric speed.
func (s *CombinedStore) Fetch(ctx context.Context, geo selection.Geography) ([]areasummary.Counts, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT speed, has_0, has_1, has_2, has_3plus
FROM combined
WHERE type = ? AND id = ? AND tech = ?
ORDER BY TRY_CAST(speed AS DOUBLE) NULLS LAST, speed`, geo.Type, geo.ID, s.tech)
	if err != nil {
		return nil, fmt.Errorf("query combined: %w", err)
	}
	defer rows.Close()

	var out []areasummary.Counts
	for rows.Next() {
		var c areasummary.Counts
		if err := rows.Scan(&c.Speed, &c.Has0, &c.Has1, &c.Has2, &c.Has3Plus); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
