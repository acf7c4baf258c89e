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

// Package models defines the data structures shared across the ingestion service.
package models

import "time"

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// EmailBody represents the message body content.
type EmailBody struct {
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// IsHTML reports whether the body should be treated as HTML.
func (b EmailBody) IsHTML() bool {
	return b.ContentType == "html" || b.ContentType == "text/html" || b.ContentType == "HTML"
}

// Message represents a mailbox message as returned by the provider's list
// endpoint. The fields cover everything the processing pipeline needs; the
// raw MIME content and attachment payloads are fetched separately.
type Message struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject"`
	From           EmailAddress   `json:"from"`
	To             []EmailAddress `json:"to"`
	ReceivedAt     time.Time      `json:"received_at"`
	IsRead         bool           `json:"is_read"`
	HasAttachments bool           `json:"has_attachments"`
	Body           EmailBody      `json:"body"`
}

// AttachmentMeta describes an attachment without its content. Content is
// retrieved by a second call keyed on the attachment ID.
type AttachmentMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// MailFolder represents a provider-side mail folder.
type MailFolder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
