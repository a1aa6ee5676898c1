package state

import (
	"database/sql"
	"time"
)

// Tarball maps a bootstrap URL to the content digest stored in the cache.
type Tarball struct {
	URL       string    `json:"url"`
	Digest    string    `json:"digest"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SaveTarball inserts or replaces a cache index entry.
func (d *DB) SaveTarball(url, digest string) error {
	_, err := d.db.Exec(`
		INSERT INTO tarballs (url, digest, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			digest = excluded.digest,
			fetched_at = excluded.fetched_at
	`, url, digest, time.Now().Format(time.RFC3339))
	return err
}

// GetTarball retrieves a cache index entry by URL. Returns (nil, nil) when no
// entry exists.
func (d *DB) GetTarball(url string) (*Tarball, error) {
	row := d.db.QueryRow(`
		SELECT url, digest, fetched_at FROM tarballs WHERE url = ?
	`, url)

	var t Tarball
	var fetchedStr string
	err := row.Scan(&t.URL, &t.Digest, &fetchedStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.FetchedAt, _ = time.Parse(time.RFC3339, fetchedStr)
	return &t, nil
}

// DeleteTarball removes a cache index entry.
func (d *DB) DeleteTarball(url string) error {
	_, err := d.db.Exec(`DELETE FROM tarballs WHERE url = ?`, url)
	return err
}
