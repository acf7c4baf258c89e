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

// Package fetch selects candidate messages from a resolved source folder.
// Provider errors are logged and reported as "nothing available" for the
// mailbox this cycle; they never propagate to the scheduler.
package fetch

import (
	"context"
	"log/slog"

	"github.com/arquiva/ingestion/internal/models"
)

const (
	// countScanLimit bounds the candidate count scan.
	countScanLimit = 10
	// diagnosticSample is how many messages the unfiltered re-query logs.
	diagnosticSample = 5
)

// Client is the subset of provider message operations the fetcher needs.
type Client interface {
	ListMessages(ctx context.Context, mailbox, folderID string, unreadOnly bool, top int) ([]models.Message, error)
	CountMessages(ctx context.Context, mailbox, folderID string, unreadOnly bool, max int) (int, error)
}

// Fetcher queries a mailbox's source folder for work.
type Fetcher struct {
	client Client
}

// NewFetcher creates a message fetcher.
func NewFetcher(client Client) *Fetcher {
	return &Fetcher{client: client}
}

// Next returns the newest candidate message in the folder, or nil when none
// is available or the query failed.
func (f *Fetcher) Next(ctx context.Context, mailbox, folderID string, unreadOnly bool) *models.Message {
	msgs, err := f.client.ListMessages(ctx, mailbox, folderID, unreadOnly, 1)
	if err != nil {
		slog.Error("failed to fetch next message",
			"mailbox", mailbox,
			"folder_id", folderID,
			"error", err,
		)
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[0]
}

// Count returns how many candidate messages exist, bounded by a small scan.
// When the unread filter yields zero, one diagnostic re-query without the
// filter distinguishes "no new mail" from "filter misconfigured"; the
// distinction only changes log output, never control flow.
func (f *Fetcher) Count(ctx context.Context, mailbox, folderID string, unreadOnly bool) int {
	n, err := f.client.CountMessages(ctx, mailbox, folderID, unreadOnly, countScanLimit)
	if err != nil {
		slog.Error("failed to count candidate messages",
			"mailbox", mailbox,
			"folder_id", folderID,
			"error", err,
		)
		return 0
	}

	if n == 0 && unreadOnly {
		f.logUnfilteredSample(ctx, mailbox, folderID)
	}

	return n
}

// logUnfilteredSample re-queries without the unread filter and logs what the
// folder actually holds.
func (f *Fetcher) logUnfilteredSample(ctx context.Context, mailbox, folderID string) {
	msgs, err := f.client.ListMessages(ctx, mailbox, folderID, false, diagnosticSample)
	if err != nil {
		slog.Debug("diagnostic re-query failed",
			"mailbox", mailbox,
			"folder_id", folderID,
			"error", err,
		)
		return
	}

	if len(msgs) == 0 {
		slog.Debug("no messages in folder at all", "mailbox", mailbox, "folder_id", folderID)
		return
	}

	slog.Info("unread filter matched nothing but the folder is not empty",
		"mailbox", mailbox,
		"folder_id", folderID,
		"total_sampled", len(msgs),
	)
	for _, m := range msgs {
		slog.Info("folder sample",
			"mailbox", mailbox,
			"subject", m.Subject,
			"is_read", m.IsRead,
			"received_at", m.ReceivedAt,
		)
	}
}
