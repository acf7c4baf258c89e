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

package folders

import (
	"context"
	"errors"
	"testing"

	"github.com/arquiva/ingestion/internal/models"
)

type fakeClient struct {
	wellKnownID   string
	wellKnownErr  error
	folders       map[string][]models.MailFolder
	folderNames   []string
	createErr     error
	created       []string
	findCalls     int
	wellKnownHits int
}

func (f *fakeClient) WellKnownFolderID(ctx context.Context, mailbox, token string) (string, error) {
	f.wellKnownHits++
	return f.wellKnownID, f.wellKnownErr
}

func (f *fakeClient) FindFoldersByName(ctx context.Context, mailbox, displayName string) ([]models.MailFolder, error) {
	f.findCalls++
	return f.folders[displayName], nil
}

func (f *fakeClient) ListFolderNames(ctx context.Context, mailbox string) ([]string, error) {
	return f.folderNames, nil
}

func (f *fakeClient) CreateFolder(ctx context.Context, mailbox, displayName string) (models.MailFolder, error) {
	if f.createErr != nil {
		return models.MailFolder{}, f.createErr
	}
	f.created = append(f.created, displayName)
	folder := models.MailFolder{ID: "created-" + displayName, DisplayName: displayName}
	f.folders[displayName] = append(f.folders[displayName], folder)
	return folder, nil
}

func TestSourceFolderID_EmptyNameUsesWellKnownInbox(t *testing.T) {
	client := &fakeClient{wellKnownID: "inbox-id"}
	r := NewResolver(client)

	id, err := r.SourceFolderID(context.Background(), "a@x.com", "")
	if err != nil {
		t.Fatalf("SourceFolderID() error = %v", err)
	}
	if id != "inbox-id" {
		t.Errorf("id = %q, want inbox-id", id)
	}
}

func TestSourceFolderID_CachesResolution(t *testing.T) {
	client := &fakeClient{wellKnownID: "inbox-id"}
	r := NewResolver(client)

	for i := 0; i < 3; i++ {
		if _, err := r.SourceFolderID(context.Background(), "a@x.com", ""); err != nil {
			t.Fatalf("SourceFolderID() error = %v", err)
		}
	}
	if client.wellKnownHits != 1 {
		t.Errorf("wellKnownHits = %d, want 1 (cached after first)", client.wellKnownHits)
	}
}

func TestSourceFolderID_NotFoundCarriesAvailableFolders(t *testing.T) {
	client := &fakeClient{
		folders:     map[string][]models.MailFolder{},
		folderNames: []string{"Inbox", "Drafts", "Sent Items"},
	}
	r := NewResolver(client)

	_, err := r.SourceFolderID(context.Background(), "a@x.com", "Triage")
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	var nf *NotFoundError
	errors.As(err, &nf)
	if nf.Name != "Triage" || len(nf.Available) != 3 {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestSourceFolderID_AmbiguousNameUsesFirstMatch(t *testing.T) {
	client := &fakeClient{
		folders: map[string][]models.MailFolder{
			"Triage": {
				{ID: "f1", DisplayName: "Triage"},
				{ID: "f2", DisplayName: "Triage"},
			},
		},
	}
	r := NewResolver(client)

	id, err := r.SourceFolderID(context.Background(), "a@x.com", "Triage")
	if err != nil {
		t.Fatalf("SourceFolderID() error = %v", err)
	}
	if id != "f1" {
		t.Errorf("id = %q, want first match f1", id)
	}
}

func TestEnsureFolder_CreatesWhenMissing(t *testing.T) {
	client := &fakeClient{folders: map[string][]models.MailFolder{}}
	r := NewResolver(client)

	id, err := r.EnsureFolder(context.Background(), "a@x.com", "Processados")
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	if id != "created-Processados" {
		t.Errorf("id = %q", id)
	}
	if len(client.created) != 1 {
		t.Errorf("created = %v, want one create", client.created)
	}

	// Second call hits the cache, no further creates.
	if _, err := r.EnsureFolder(context.Background(), "a@x.com", "Processados"); err != nil {
		t.Fatalf("EnsureFolder() second call error = %v", err)
	}
	if len(client.created) != 1 {
		t.Errorf("created = %v after second call", client.created)
	}
}

func TestEnsureFolder_ReturnsExisting(t *testing.T) {
	client := &fakeClient{
		folders: map[string][]models.MailFolder{
			"Errors": {{ID: "f-err", DisplayName: "Errors"}},
		},
	}
	r := NewResolver(client)

	id, err := r.EnsureFolder(context.Background(), "a@x.com", "Errors")
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	if id != "f-err" {
		t.Errorf("id = %q, want f-err", id)
	}
	if len(client.created) != 0 {
		t.Errorf("created = %v, want none", client.created)
	}
}

// A create that fails because another writer won the race must fall back to
// re-finding the folder instead of failing the cycle.
func TestEnsureFolder_CreateRaceFallsBackToFind(t *testing.T) {
	client := &fakeClient{
		folders:   map[string][]models.MailFolder{},
		createErr: errors.New("409 conflict: folder already exists"),
	}
	// Simulate the folder appearing between the first find and the create.
	firstFind := true
	findStub := func() []models.MailFolder {
		if firstFind {
			firstFind = false
			return nil
		}
		return []models.MailFolder{{ID: "raced", DisplayName: "Processados"}}
	}
	raced := &racedClient{fakeClient: client, find: findStub}

	id, err := NewResolver(raced).EnsureFolder(context.Background(), "a@x.com", "Processados")
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	if id != "raced" {
		t.Errorf("id = %q, want raced", id)
	}
}

type racedClient struct {
	*fakeClient
	find func() []models.MailFolder
}

func (r *racedClient) FindFoldersByName(ctx context.Context, mailbox, displayName string) ([]models.MailFolder, error) {
	return r.find(), nil
}

func TestEvict_ForcesReResolution(t *testing.T) {
	client := &fakeClient{wellKnownID: "inbox-id"}
	r := NewResolver(client)

	if _, err := r.SourceFolderID(context.Background(), "a@x.com", ""); err != nil {
		t.Fatalf("SourceFolderID() error = %v", err)
	}
	r.Evict("a@x.com", "")
	if _, err := r.SourceFolderID(context.Background(), "a@x.com", ""); err != nil {
		t.Fatalf("SourceFolderID() after evict error = %v", err)
	}
	if client.wellKnownHits != 2 {
		t.Errorf("wellKnownHits = %d, want 2 after eviction", client.wellKnownHits)
	}
}
