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

// Package metadata builds the fixed-schema XML sibling artifact written next
// to each processed message's rendered body.
package metadata

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arquiva/ingestion/internal/models"
)

const (
	// Via tags the ingestion channel in the document.
	Via = "EMAIL"
	// FormatVersion is the document format marker.
	FormatVersion = "1.0"
	// FileName is the metadata document's name inside the working directory.
	FileName = "email.xml"
)

// Document is the per-message metadata artifact.
type Document struct {
	XMLName  xml.Name `xml:"email"`
	Via      string   `xml:"via"`
	Data     string   `xml:"data"`
	Hora     int      `xml:"hora"`
	Assunto  string   `xml:"assunto"`
	Pasta    string   `xml:"pasta"`
	Ficheiro string   `xml:"ficheiro"`
	Anexos   []string `xml:"anexos>anexo"`
	From     string   `xml:"from"`
	To       string   `xml:"to"`
	Ver      string   `xml:"ver"`
}

// Params collects everything needed to build a Document.
type Params struct {
	ReceivedAt time.Time
	Subject    string
	// Directory is the message's working directory.
	Directory string
	// PDFName is the rendered body's filename.
	PDFName string
	// Attachments lists captured filenames: raw MIME copy first when present,
	// then downloaded attachments in discovery order.
	Attachments []string
	Sender      string
	// Recipients is the filtered recipient list (see FilterRecipients).
	Recipients []string
}

// New builds a Document from the given parameters.
func New(p Params) Document {
	return Document{
		Via:      Via,
		Data:     p.ReceivedAt.Format(time.RFC3339),
		Hora:     SecondsSinceMidnight(p.ReceivedAt),
		Assunto:  p.Subject,
		Pasta:    EscapePath(p.Directory),
		Ficheiro: p.PDFName,
		Anexos:   p.Attachments,
		From:     p.Sender,
		To:       strings.Join(p.Recipients, ";"),
		Ver:      FormatVersion,
	}
}

// WriteFile serialises the document to path.
func (d Document) WriteFile(path string) error {
	data, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata document: %w", err)
	}
	out := append([]byte(xml.Header), data...)
	out = append(out, '\n')
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write metadata document: %w", err)
	}
	return nil
}

// SecondsSinceMidnight returns t's time of day in whole seconds.
func SecondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// EscapePath doubles the backslashes of a storage path and appends a trailing
// double-backslash, per the consumer's expected format.
func EscapePath(dir string) string {
	return strings.ReplaceAll(dir, `\`, `\\`) + `\\`
}

// FilterRecipients intersects a message's original recipients with the
// configured mailbox addresses, case-insensitively and preserving the
// original order and casing. When the intersection is empty the processing
// mailbox's own address is returned so the field is never empty.
func FilterRecipients(original []models.EmailAddress, configured []string, self string) []string {
	known := make(map[string]bool, len(configured))
	for _, addr := range configured {
		known[strings.ToLower(addr)] = true
	}

	var out []string
	for _, r := range original {
		if known[strings.ToLower(r.Address)] {
			out = append(out, r.Address)
		}
	}

	if len(out) == 0 {
		return []string{self}
	}
	return out
}
