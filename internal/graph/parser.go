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

package graph

import (
	"time"

	"github.com/arquiva/ingestion/internal/models"
)

// graphMessage represents the relevant fields from a Graph API message response.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	ReceivedDateTime string `json:"receivedDateTime"`
	IsRead           bool   `json:"isRead"`
	HasAttachments   bool   `json:"hasAttachments"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

// toModel converts a Graph API message into the canonical Message.
func (m graphMessage) toModel() models.Message {
	to := make([]models.EmailAddress, 0, len(m.ToRecipients))
	for _, r := range m.ToRecipients {
		to = append(to, models.EmailAddress{
			Address: r.EmailAddress.Address,
			Name:    r.EmailAddress.Name,
		})
	}

	received, err := time.Parse(time.RFC3339, m.ReceivedDateTime)
	if err != nil {
		received = time.Time{}
	}

	return models.Message{
		ID:      m.ID,
		Subject: m.Subject,
		From: models.EmailAddress{
			Address: m.From.EmailAddress.Address,
			Name:    m.From.EmailAddress.Name,
		},
		To:             to,
		ReceivedAt:     received,
		IsRead:         m.IsRead,
		HasAttachments: m.HasAttachments,
		Body: models.EmailBody{
			ContentType: m.Body.ContentType,
			Content:     m.Body.Content,
		},
	}
}

// messagesPage represents a page of the /messages list response.
type messagesPage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// graphAttachment represents a fileAttachment with inline content bytes.
type graphAttachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int    `json:"size"`
	ContentBytes string `json:"contentBytes"`
}

// attachmentsPage represents the /attachments list response.
type attachmentsPage struct {
	Value []graphAttachment `json:"value"`
}

// foldersPage represents a page of the /mailFolders list response.
type foldersPage struct {
	Value    []models.MailFolder `json:"value"`
	NextLink string              `json:"@odata.nextLink"`
}
