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

// Package folders maps a mailbox to the provider folder IDs the pipeline
// reads from and writes to, with in-process caching and lazy creation of the
// processed/error folders.
package folders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arquiva/ingestion/internal/models"
)

// Client is the subset of provider folder operations the resolver needs.
type Client interface {
	WellKnownFolderID(ctx context.Context, mailbox, token string) (string, error)
	FindFoldersByName(ctx context.Context, mailbox, displayName string) ([]models.MailFolder, error)
	ListFolderNames(ctx context.Context, mailbox string) ([]string, error)
	CreateFolder(ctx context.Context, mailbox, displayName string) (models.MailFolder, error)
}

// NotFoundError reports a configured folder name that resolved to zero
// folders. It carries the mailbox's available folder names as a diagnostic
// aid; this is a terminal configuration error, not a retryable condition.
type NotFoundError struct {
	Mailbox   string
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("folder %q not found on mailbox %s (available: %s)",
		e.Name, e.Mailbox, strings.Join(e.Available, ", "))
}

// IsNotFound reports whether err is a folder-not-found configuration error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// wellKnownInbox is the provider shortcut for the canonical receiving folder.
const wellKnownInbox = "inbox"

// Resolver resolves and caches folder IDs per mailbox. Resolved IDs live for
// the process lifetime; a restart re-resolves. The cache is written only from
// the single scheduler goroutine, so no locking is needed — if mailboxes are
// ever processed in parallel this must become a keyed concurrent map.
type Resolver struct {
	client Client
	cache  map[string]string
}

// NewResolver creates a folder resolver.
func NewResolver(client Client) *Resolver {
	return &Resolver{
		client: client,
		cache:  make(map[string]string),
	}
}

func cacheKey(mailbox, name string) string {
	return strings.ToLower(mailbox) + "|" + name
}

// SourceFolderID returns the folder ID to poll for a mailbox. An empty
// folderName selects the canonical inbox via the well-known-folder shortcut;
// a named folder requires an exact display-name match. Zero matches produce a
// NotFoundError listing the mailbox's folders; multiple matches resolve to
// the first with the ambiguity logged.
func (r *Resolver) SourceFolderID(ctx context.Context, mailbox, folderName string) (string, error) {
	key := cacheKey(mailbox, folderName)
	if id, ok := r.cache[key]; ok {
		return id, nil
	}

	if folderName == "" {
		id, err := r.client.WellKnownFolderID(ctx, mailbox, wellKnownInbox)
		if err != nil {
			return "", fmt.Errorf("resolve inbox for %s: %w", mailbox, err)
		}
		r.cache[key] = id
		return id, nil
	}

	matches, err := r.client.FindFoldersByName(ctx, mailbox, folderName)
	if err != nil {
		return "", fmt.Errorf("resolve folder %q for %s: %w", folderName, mailbox, err)
	}

	switch len(matches) {
	case 0:
		available, listErr := r.client.ListFolderNames(ctx, mailbox)
		if listErr != nil {
			slog.Error("failed to enumerate folders for diagnostics",
				"mailbox", mailbox,
				"error", listErr,
			)
		}
		slog.Error("configured folder not found",
			"mailbox", mailbox,
			"folder", folderName,
			"available", available,
		)
		return "", &NotFoundError{Mailbox: mailbox, Name: folderName, Available: available}
	case 1:
	default:
		slog.Warn("folder name is ambiguous, using first match",
			"mailbox", mailbox,
			"folder", folderName,
			"matches", len(matches),
		)
	}

	r.cache[key] = matches[0].ID
	return matches[0].ID, nil
}

// EnsureFolder returns the ID of a folder, creating it when missing. Creation
// is idempotent: a create that loses a race to another writer falls back to
// re-finding the folder and treats "already exists" as success.
func (r *Resolver) EnsureFolder(ctx context.Context, mailbox, name string) (string, error) {
	key := cacheKey(mailbox, name)
	if id, ok := r.cache[key]; ok {
		return id, nil
	}

	matches, err := r.client.FindFoldersByName(ctx, mailbox, name)
	if err != nil {
		return "", fmt.Errorf("find folder %q for %s: %w", name, mailbox, err)
	}
	if len(matches) > 0 {
		r.cache[key] = matches[0].ID
		return matches[0].ID, nil
	}

	created, err := r.client.CreateFolder(ctx, mailbox, name)
	if err != nil {
		// Lost a create race? Re-check before giving up.
		matches, findErr := r.client.FindFoldersByName(ctx, mailbox, name)
		if findErr == nil && len(matches) > 0 {
			r.cache[key] = matches[0].ID
			return matches[0].ID, nil
		}
		return "", fmt.Errorf("create folder %q for %s: %w", name, mailbox, err)
	}

	slog.Info("created folder", "mailbox", mailbox, "folder", name, "id", created.ID)
	r.cache[key] = created.ID
	return created.ID, nil
}

// Evict drops a cached folder ID. Callers evict when a cached ID answers 404
// so the next resolution starts fresh.
func (r *Resolver) Evict(mailbox, name string) {
	delete(r.cache, cacheKey(mailbox, name))
}
