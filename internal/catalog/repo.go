package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Row is one catalogued file.
type Row struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upsert inserts or replaces a file record.
func (db *DB) Upsert(r Row) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO files (path, size, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size       = excluded.size,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, r.Path, r.Size, r.Checksum, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", r.Path, err)
	}
	return nil
}

// Delete removes a file record. Deleting an unknown path is not an error.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", path, err)
	}
	return nil
}

// DeleteTree removes the records of every file below dir.
func (db *DB) DeleteTree(dir string) error {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	// substr avoids LIKE wildcards in path names.
	_, err := db.conn.Exec(`DELETE FROM files WHERE substr(path, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return fmt.Errorf("catalog: delete tree %s: %w", dir, err)
	}
	return nil
}

// Clear removes every record.
func (db *DB) Clear() error {
	if _, err := db.conn.Exec(`DELETE FROM files`); err != nil {
		return fmt.Errorf("catalog: clear: %w", err)
	}
	return nil
}

// Get returns the record for path and whether it exists.
func (db *DB) Get(path string) (Row, bool, error) {
	var r Row
	err := db.conn.QueryRow(`SELECT path, size, checksum, updated_at FROM files WHERE path = ?`, path).
		Scan(&r.Path, &r.Size, &r.Checksum, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("catalog: get %s: %w", path, err)
	}
	return r, true, nil
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	r, _, err := db.Get(path)
	return r.Checksum, err
}

// AllChecksums returns path → checksum for every record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// List returns every record ordered by path.
func (db *DB) List() ([]Row, error) {
	rows, err := db.conn.Query(`SELECT path, size, checksum, updated_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Path, &r.Size, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
