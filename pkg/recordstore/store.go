// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package recordstore is the mock CRM backend the responder may query.
//
// Records are schemaless JSON objects grouped by object name (Account,
// Case, ...) and kept in a SQL database: SQLite by default, PostgreSQL or
// MySQL when configured. Two tiny query dialects are supported: a SOQL
// subset (SELECT fields FROM object [WHERE key = value | key LIKE value])
// and a SOSL subset (FIND {term}).
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultObjects are created when no schema is supplied.
func DefaultObjects() []string {
	return []string{"Account", "Case", "Contact", "Opportunity"}
}

// Record is one CRM row.
type Record map[string]any

// schema holds the per-dialect DDL.
var schema = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS objects (
    name VARCHAR(255) PRIMARY KEY,
    seq INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    object VARCHAR(255) NOT NULL,
    data_json TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_records_object ON records(object)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS objects (
    name VARCHAR(255) PRIMARY KEY,
    seq INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS records (
    id BIGSERIAL PRIMARY KEY,
    object VARCHAR(255) NOT NULL,
    data_json TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_records_object ON records(object)`,
	},
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS objects (
    name VARCHAR(255) PRIMARY KEY,
    seq INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS records (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    object VARCHAR(255) NOT NULL,
    data_json TEXT NOT NULL,
    INDEX idx_records_object (object)
)`,
	},
}

// Store is a SQL-backed record store.
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record store config: %w", err)
	}

	db, err := sql.Open(cfg.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	// SQLite allows one writer, and every new connection to :memory: is a
	// fresh database.
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxIdle)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to record store: %w", err)
	}

	for _, stmt := range schema[cfg.Driver] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create record store schema: %w", err)
		}
	}
	slog.Debug("Record store ready", "driver", cfg.Driver)
	return &Store{db: db, dialect: cfg.Driver}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() string { return s.dialect }

// rebind rewrites ? placeholders for dialects that number them.
func (s *Store) rebind(query string) string {
	if s.dialect != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateObject registers an object name. Registering twice is a no-op.
func (s *Store) CreateObject(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("object name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM objects WHERE name = ?`), name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to create object %s: %w", name, err)
	}
	if exists > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO objects (name, seq) SELECT ?, COALESCE(MAX(seq), 0) + 1 FROM objects`), name)
	if err != nil {
		return fmt.Errorf("failed to create object %s: %w", name, err)
	}
	return tx.Commit()
}

// Objects returns the registered object names in creation order.
func (s *Store) Objects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM objects ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Insert adds records to an object, registering the object if needed.
func (s *Store) Insert(ctx context.Context, object string, records ...Record) error {
	if err := s.CreateObject(ctx, object); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode %s record: %w", object, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO records (object, data_json) VALUES (?, ?)`), object, string(data)); err != nil {
			return fmt.Errorf("failed to insert %s record: %w", object, err)
		}
	}
	return tx.Commit()
}

// Seed registers the default objects and a minimal demo data set. The
// demo rows are only inserted into an empty Case table, so seeding a
// persistent database twice is harmless.
func (s *Store) Seed(ctx context.Context) error {
	for _, name := range DefaultObjects() {
		if err := s.CreateObject(ctx, name); err != nil {
			return err
		}
	}
	existing, err := s.records(ctx, "Case")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if err := s.Insert(ctx, "Case", Record{
		"Id":          "500-DEMO-001",
		"CaseNumber":  "00001001",
		"Subject":     "Billing Error",
		"Status":      "New",
		"Priority":    "High",
		"Description": "Customer was overcharged.",
		"Type":        "Billing",
	}); err != nil {
		return err
	}
	return s.Insert(ctx, "Account", Record{
		"Id":       "001-DEMO-999",
		"Name":     "Acme Corp",
		"Industry": "Technology",
		"Phone":    "555-0100",
	})
}

// LoadFile imports a JSON document mapping object names to record lists.
// A missing file is logged and ignored.
func (s *Store) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Record data file not found, skipping", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read record data: %w", err)
	}

	var doc map[string][]Record
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse record data %s: %w", path, err)
	}
	for object, records := range doc {
		if err := s.Insert(ctx, object, records...); err != nil {
			return err
		}
	}
	slog.Info("Loaded record data", "path", path, "objects", len(doc))
	return nil
}

// resolveObject finds the registered object name matching name, ignoring case.
func (s *Store) resolveObject(ctx context.Context, name string) (string, bool, error) {
	var resolved string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT name FROM objects WHERE lower(name) = lower(?) ORDER BY seq LIMIT 1`), name).Scan(&resolved)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve object %s: %w", name, err)
	}
	return resolved, true, nil
}

func (s *Store) records(ctx context.Context, object string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT data_json FROM records WHERE object = ? ORDER BY id`), object)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", object, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

type objectRecord struct {
	object string
	record Record
}

// allRecords returns every record grouped by object creation order.
func (s *Store) allRecords(ctx context.Context) ([]objectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.object, r.data_json
		FROM records r JOIN objects o ON o.name = r.object
		ORDER BY o.seq, r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	defer rows.Close()

	var out []objectRecord
	for rows.Next() {
		var object, data string
		if err := rows.Scan(&object, &data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("corrupt %s record: %w", object, err)
		}
		out = append(out, objectRecord{object: object, record: r})
	}
	return out, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("corrupt record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
