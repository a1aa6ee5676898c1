package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Provision states.
const (
	StateProvisioning = "provisioning"
	StateReady        = "ready"
)

// Provision records one provisioned rootfs tree.
type Provision struct {
	Rootfs    string    `json:"rootfs"`
	Mirror    string    `json:"mirror"`
	Packages  []string  `json:"packages,omitempty"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Mount records one mount created under a rootfs. Rows are inserted in mount
// order, so walking them by descending id unwinds newest first.
type Mount struct {
	ID        int64     `json:"id"`
	Rootfs    string    `json:"rootfs"`
	Target    string    `json:"target"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveProvision inserts or replaces a provision record.
func (d *DB) SaveProvision(p *Provision) error {
	pkgJSON, _ := json.Marshal(p.Packages)

	_, err := d.db.Exec(`
		INSERT INTO provisions (rootfs, mirror, packages, state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(rootfs) DO UPDATE SET
			mirror = excluded.mirror,
			packages = excluded.packages,
			state = excluded.state
	`, p.Rootfs, p.Mirror, string(pkgJSON), p.State, p.CreatedAt.Format(time.RFC3339))
	return err
}

// GetProvision retrieves a provision by rootfs path. Returns (nil, nil) when
// no record exists.
func (d *DB) GetProvision(rootfs string) (*Provision, error) {
	row := d.db.QueryRow(`
		SELECT rootfs, mirror, packages, state, created_at
		FROM provisions WHERE rootfs = ?
	`, rootfs)
	return scanProvision(row)
}

// ListProvisions returns all provisions, newest first.
func (d *DB) ListProvisions() ([]*Provision, error) {
	rows, err := d.db.Query(`
		SELECT rootfs, mirror, packages, state, created_at
		FROM provisions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var provisions []*Provision
	for rows.Next() {
		p, err := scanProvisionRow(rows)
		if err != nil {
			return nil, err
		}
		provisions = append(provisions, p)
	}
	return provisions, rows.Err()
}

// UpdateProvisionState updates a provision's state.
func (d *DB) UpdateProvisionState(rootfs, st string) error {
	res, err := d.db.Exec(`
		UPDATE provisions SET state = ? WHERE rootfs = ?
	`, st, rootfs)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("provision %s not found", rootfs)
	}
	return nil
}

// DeleteProvision removes a provision and its mount records.
func (d *DB) DeleteProvision(rootfs string) error {
	if err := d.DeleteMounts(rootfs); err != nil {
		return err
	}
	_, err := d.db.Exec(`DELETE FROM provisions WHERE rootfs = ?`, rootfs)
	return err
}

// AddMount records a mount created under a rootfs.
func (d *DB) AddMount(rootfs, target, kind string) error {
	_, err := d.db.Exec(`
		INSERT INTO mounts (rootfs, target, kind, created_at)
		VALUES (?, ?, ?, ?)
	`, rootfs, target, kind, time.Now().Format(time.RFC3339))
	return err
}

// MountsFor returns the recorded mounts for a rootfs, newest first, which is
// the order teardown must unmount them in.
func (d *DB) MountsFor(rootfs string) ([]*Mount, error) {
	rows, err := d.db.Query(`
		SELECT id, rootfs, target, kind, created_at
		FROM mounts WHERE rootfs = ? ORDER BY id DESC
	`, rootfs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mounts []*Mount
	for rows.Next() {
		var m Mount
		var createdStr string
		if err := rows.Scan(&m.ID, &m.Rootfs, &m.Target, &m.Kind, &createdStr); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		mounts = append(mounts, &m)
	}
	return mounts, rows.Err()
}

// DeleteMounts removes all mount records for a rootfs.
func (d *DB) DeleteMounts(rootfs string) error {
	_, err := d.db.Exec(`DELETE FROM mounts WHERE rootfs = ?`, rootfs)
	return err
}

func scanProvision(row *sql.Row) (*Provision, error) {
	var p Provision
	var pkgJSON, createdStr string

	err := row.Scan(&p.Rootfs, &p.Mirror, &pkgJSON, &p.State, &createdStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(pkgJSON), &p.Packages)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return &p, nil
}

func scanProvisionRow(rows *sql.Rows) (*Provision, error) {
	var p Provision
	var pkgJSON, createdStr string

	err := rows.Scan(&p.Rootfs, &p.Mirror, &pkgJSON, &p.State, &createdStr)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(pkgJSON), &p.Packages)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return &p, nil
}
