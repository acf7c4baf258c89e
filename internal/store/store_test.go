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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/arquiva/ingestion/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    ":memory:",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("Open() error = nil, want unsupported driver error")
	}
}

func TestInsertAndCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	received := time.Date(2026, 3, 14, 10, 15, 30, 0, time.UTC)
	rec := Record{
		MessageID:    "msg-1",
		Sender:       "sender@example.com",
		ReceivedAt:   received,
		Recipients:   "a@x.com;b@x.com",
		Subject:      "invoice",
		DocumentPath: "/var/spool/mail/msg1/email.xml",
	}
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	var row struct {
		Data          string `db:"data"`
		Hora          int    `db:"hora"`
		Destinatarios string `db:"destinatarios"`
		Processado    int    `db:"processado"`
		Campo1        string `db:"campo1"`
	}
	err = s.db.GetContext(ctx, &row,
		"SELECT data, hora, destinatarios, processado, campo1 FROM processed_emails WHERE id_mensagem = ?", "msg-1")
	if err != nil {
		t.Fatalf("select row: %v", err)
	}
	if row.Data != "2026-03-14T10:15:30Z" {
		t.Errorf("data = %q", row.Data)
	}
	if want := 10*3600 + 15*60 + 30; row.Hora != want {
		t.Errorf("hora = %d, want %d", row.Hora, want)
	}
	if row.Destinatarios != "a@x.com;b@x.com" {
		t.Errorf("destinatarios = %q", row.Destinatarios)
	}
	if row.Processado != 0 {
		t.Errorf("processado = %d, want 0", row.Processado)
	}
	if row.Campo1 != "" {
		t.Errorf("campo1 = %q, want empty", row.Campo1)
	}
}

func TestInsert_DuplicateMessageIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := Record{MessageID: "dup", Sender: "s@x.com", ReceivedAt: time.Now(), Recipients: "a@x.com"}
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("first Insert() error = %v", err)
	}
	if err := s.Insert(ctx, rec); err == nil {
		t.Error("second Insert() error = nil, want primary key violation")
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.ensureSchema(context.Background()); err != nil {
		t.Errorf("second ensureSchema() error = %v", err)
	}
}
