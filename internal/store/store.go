// Copyright (c) 2026 Arquiva Software
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

// Package store persists one row per successfully processed message. Three
// driver families are supported — postgres (pgx), mysql and sqlite — behind
// a single logical schema; sqlx rebinding keeps the insert uniform.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/arquiva/ingestion/internal/config"
)

// Record is the row written after all file artifacts exist on disk. The
// insert is the last write of a successful attempt, so the filesystem is
// always a superset of what the database claims.
type Record struct {
	MessageID    string
	Sender       string
	ReceivedAt   time.Time
	Recipients   string // semicolon-joined, filtered
	Subject      string
	DocumentPath string // path to the metadata document
}

// Store wraps a database handle for one of the supported driver families.
type Store struct {
	db     *sqlx.DB
	driver string
}

// driverName maps the configured family to the registered sql driver.
func driverName(family string) (string, error) {
	switch family {
	case "postgres":
		return "pgx", nil
	case "mysql":
		return "mysql", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", family)
	}
}

// Open connects to the configured database, probes connectivity and ensures
// the schema exists.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	name, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(name, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("probe database: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	slog.Info("database store initialised", "driver", cfg.Driver)
	return s, nil
}

// Ping runs the family's connectivity probe.
func (s *Store) Ping(ctx context.Context) error {
	probe := "SELECT 1"
	if s.driver == "mysql" {
		probe = "SELECT 1 FROM DUAL"
	}
	var one int
	return s.db.GetContext(ctx, &one, probe)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS processed_emails (
			id_mensagem   VARCHAR(512) NOT NULL,
			remetente     VARCHAR(320) NOT NULL,
			data          VARCHAR(40)  NOT NULL,
			hora          INTEGER      NOT NULL,
			destinatarios TEXT         NOT NULL,
			assunto       TEXT,
			ficheiro      TEXT         NOT NULL,
			processado    SMALLINT     NOT NULL DEFAULT 0,
			campo1        TEXT,
			campo2        TEXT,
			campo3        TEXT,
			PRIMARY KEY (id_mensagem)
		)`)
	return err
}

// Insert writes the record. The processed flag starts at 0 ("not yet consumed
// downstream") and the three reserved fields are left empty for downstream
// systems.
func (s *Store) Insert(ctx context.Context, r Record) error {
	query := s.db.Rebind(`
		INSERT INTO processed_emails
			(id_mensagem, remetente, data, hora, destinatarios, assunto, ficheiro, processado, campo1, campo2, campo3)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', '', '')`)

	_, err := s.db.ExecContext(ctx, query,
		r.MessageID,
		r.Sender,
		r.ReceivedAt.Format(time.RFC3339),
		secondsSinceMidnight(r.ReceivedAt),
		r.Recipients,
		r.Subject,
		r.DocumentPath,
	)
	if err != nil {
		return fmt.Errorf("insert processed email %s: %w", r.MessageID, err)
	}
	return nil
}

// Count returns the number of recorded rows. Used by tests and diagnostics.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM processed_emails"); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func secondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
