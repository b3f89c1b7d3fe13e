package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dids/devterm/internal/client"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	ip        TEXT NOT NULL DEFAULT '',
	os        TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL DEFAULT '',
	last_seen TEXT NOT NULL DEFAULT '',
	alerts    INTEGER NOT NULL DEFAULT 0,
	named_id  INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore persists devices in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite inventory: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init database: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]client.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, ip, os, status, last_seen, alerts, named_id FROM devices ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []client.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (client.Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, ip, os, status, last_seen, alerts, named_id FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return client.Device{}, ErrNotFound
	}
	return d, err
}

func (s *SQLiteStore) Put(ctx context.Context, d client.Device) error {
	key := d.Identity()
	if key == "" {
		return ErrNoIdentity
	}
	// named_id marks records keyed by name so Get returns them without an id.
	namedID := 0
	if strings.TrimSpace(string(d.ID)) == "" {
		namedID = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, ip, os, status, last_seen, alerts, named_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, ip = excluded.ip, os = excluded.os,
			status = excluded.status, last_seen = excluded.last_seen,
			alerts = excluded.alerts, named_id = excluded.named_id`,
		key, d.Name, d.IP, d.OS, d.Status, formatTime(d.LastSeen), d.Alerts, namedID)
	return err
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status string) (client.Device, error) {
	if !ValidStatus(status) {
		return client.Device{}, ErrBadStatus
	}
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET status = ? WHERE id = ?`, strings.ToLower(status), id)
	if err != nil {
		return client.Device{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return client.Device{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(sc scanner) (client.Device, error) {
	var (
		d        client.Device
		id       string
		lastSeen string
		namedID  int
	)
	if err := sc.Scan(&id, &d.Name, &d.IP, &d.OS, &d.Status, &lastSeen, &d.Alerts, &namedID); err != nil {
		return client.Device{}, err
	}
	if namedID == 0 {
		d.ID = client.DeviceID(id)
	}
	if lastSeen != "" {
		t, err := time.Parse(time.RFC3339Nano, lastSeen)
		if err != nil {
			return client.Device{}, fmt.Errorf("device %s: last_seen: %w", id, err)
		}
		d.LastSeen = t
	}
	return d, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
