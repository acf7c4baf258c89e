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

package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arquiva/ingestion/internal/models"
)

func addrs(list ...string) []models.EmailAddress {
	out := make([]models.EmailAddress, 0, len(list))
	for _, a := range list {
		out = append(out, models.EmailAddress{Address: a})
	}
	return out
}

func TestFilterRecipients_SubsetPreservesOrderAndCasing(t *testing.T) {
	original := addrs("Z@x.com", "other@y.com", "a@x.com")
	configured := []string{"a@x.com", "z@x.com"}

	got := FilterRecipients(original, configured, "a@x.com")

	want := []string{"Z@x.com", "a@x.com"}
	if len(got) != len(want) {
		t.Fatalf("FilterRecipients() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FilterRecipients()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// An empty intersection must fall back to the processing mailbox's own
// address — the field is never empty.
func TestFilterRecipients_Fallback(t *testing.T) {
	got := FilterRecipients(addrs("stranger@y.com"), []string{"a@x.com"}, "a@x.com")

	if len(got) != 1 || got[0] != "a@x.com" {
		t.Errorf("FilterRecipients() = %v, want [a@x.com]", got)
	}
}

func TestFilterRecipients_NoOriginalRecipients(t *testing.T) {
	got := FilterRecipients(nil, []string{"a@x.com"}, "a@x.com")

	if len(got) != 1 || got[0] != "a@x.com" {
		t.Errorf("FilterRecipients() = %v, want [a@x.com]", got)
	}
}

func TestSecondsSinceMidnight(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := SecondsSinceMidnight(ts); got != 9*3600+26*60+53 {
		t.Errorf("SecondsSinceMidnight() = %d, want %d", got, 9*3600+26*60+53)
	}
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`\\share\store\abc`, `\\\\share\\store\\abc\\`},
		{`/data/store/abc`, `/data/store/abc\\`},
	}
	for _, tt := range tests {
		if got := EscapePath(tt.in); got != tt.want {
			t.Errorf("EscapePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocument_WriteFile(t *testing.T) {
	dir := t.TempDir()

	doc := New(Params{
		ReceivedAt:  time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC),
		Subject:     "Invoice & receipt",
		Directory:   dir,
		PDFName:     "email.pdf",
		Attachments: []string{"msg.eml", "invoice.pdf"},
		Sender:      "sender@y.com",
		Recipients:  []string{"a@x.com", "b@x.com"},
	})

	path := filepath.Join(dir, FileName)
	if err := doc.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metadata document: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"<via>EMAIL</via>",
		"<data>2026-03-14T10:15:00Z</data>",
		"<hora>36900</hora>",
		"<assunto>Invoice &amp; receipt</assunto>",
		"<ficheiro>email.pdf</ficheiro>",
		"<anexo>msg.eml</anexo>",
		"<anexo>invoice.pdf</anexo>",
		"<from>sender@y.com</from>",
		"<to>a@x.com;b@x.com</to>",
		"<ver>1.0</ver>",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("document missing %q:\n%s", want, content)
		}
	}

	// Raw copy first, then attachments in discovery order.
	if strings.Index(content, "msg.eml") > strings.Index(content, "invoice.pdf") {
		t.Error("attachment order not preserved")
	}
}
