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

// Package graph implements the mail-provider capability client against the
// Microsoft Graph API: listing and fetching messages, attachments, folders,
// the read-flag patch and the move operation.
package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/arquiva/ingestion/internal/models"
)

// DefaultBaseURL is the root of the Graph API.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client talks to the Graph API for one tenant. The httpClient must already
// handle authentication (e.g. via oauth2 clientcredentials).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Graph client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// NotFoundError reports a 404 from the Graph API. Callers use it to evict
// stale cached folder IDs before failing.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graph resource not found: %s", e.Resource)
}

// IsNotFound reports whether err (or anything it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ListMessages returns up to top messages from a folder, newest first.
// When unreadOnly is set, only unread messages are returned.
func (c *Client) ListMessages(ctx context.Context, mailbox, folderID string, unreadOnly bool, top int) ([]models.Message, error) {
	params := url.Values{}
	params.Set("$select", "id,subject,from,toRecipients,receivedDateTime,isRead,hasAttachments,body")
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$top", fmt.Sprintf("%d", top))
	if unreadOnly {
		params.Set("$filter", "isRead eq false")
	}

	u := fmt.Sprintf("%s/users/%s/mailFolders/%s/messages?%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(folderID), params.Encode())

	var page messagesPage
	if err := c.getJSON(ctx, u, nil, &page); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]models.Message, 0, len(page.Value))
	for _, m := range page.Value {
		out = append(out, m.toModel())
	}
	return out, nil
}

// CountMessages returns how many candidate messages exist in a folder, up to
// max. The scan is bounded and uses the provider's eventual-consistency read
// mode; the result is for cycle accounting, not an exact mailbox total.
func (c *Client) CountMessages(ctx context.Context, mailbox, folderID string, unreadOnly bool, max int) (int, error) {
	params := url.Values{}
	params.Set("$select", "id")
	params.Set("$top", fmt.Sprintf("%d", max))
	if unreadOnly {
		params.Set("$filter", "isRead eq false")
	}

	u := fmt.Sprintf("%s/users/%s/mailFolders/%s/messages?%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(folderID), params.Encode())

	var page messagesPage
	headers := map[string]string{"ConsistencyLevel": "eventual"}
	if err := c.getJSON(ctx, u, headers, &page); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return len(page.Value), nil
}

// GetMIMEContent retrieves the full RFC 822 content of a message.
func (c *Client) GetMIMEContent(ctx context.Context, mailbox, messageID string) ([]byte, error) {
	u := fmt.Sprintf("%s/users/%s/messages/%s/$value",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch MIME content: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "message "+messageID); err != nil {
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

// ListAttachments returns attachment metadata for a message. Content is not
// included; each attachment's payload is fetched by a separate call.
func (c *Client) ListAttachments(ctx context.Context, mailbox, messageID string) ([]models.AttachmentMeta, error) {
	params := url.Values{}
	params.Set("$select", "id,name,contentType,size")

	u := fmt.Sprintf("%s/users/%s/messages/%s/attachments?%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID), params.Encode())

	var page attachmentsPage
	if err := c.getJSON(ctx, u, nil, &page); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	out := make([]models.AttachmentMeta, 0, len(page.Value))
	for _, a := range page.Value {
		out = append(out, models.AttachmentMeta{
			ID:          a.ID,
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out, nil
}

// GetAttachmentContent retrieves and decodes one attachment's payload.
func (c *Client) GetAttachmentContent(ctx context.Context, mailbox, messageID, attachmentID string) ([]byte, error) {
	u := fmt.Sprintf("%s/users/%s/messages/%s/attachments/%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID), url.PathEscape(attachmentID))

	var att graphAttachment
	if err := c.getJSON(ctx, u, nil, &att); err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}

	content, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w", att.Name, err)
	}
	return content, nil
}

// MarkRead patches a message's read flag to true.
func (c *Client) MarkRead(ctx context.Context, mailbox, messageID string) error {
	u := fmt.Sprintf("%s/users/%s/messages/%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID))

	body := []byte(`{"isRead": true}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp, "message "+messageID)
}

// MoveMessage moves a message to the destination folder.
func (c *Client) MoveMessage(ctx context.Context, mailbox, messageID, destinationFolderID string) error {
	u := fmt.Sprintf("%s/users/%s/messages/%s/move",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID))

	payload, _ := json.Marshal(map[string]string{"destinationId": destinationFolderID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("move message: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp, fmt.Sprintf("message %s -> folder %s", messageID, destinationFolderID))
}

// WellKnownFolderID resolves a well-known folder token (e.g. "inbox") to its ID.
func (c *Client) WellKnownFolderID(ctx context.Context, mailbox, token string) (string, error) {
	u := fmt.Sprintf("%s/users/%s/mailFolders/%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(token))

	var folder models.MailFolder
	if err := c.getJSON(ctx, u, nil, &folder); err != nil {
		return "", fmt.Errorf("resolve well-known folder %s: %w", token, err)
	}
	return folder.ID, nil
}

// FindFoldersByName returns the folders whose display name matches exactly.
// The provider filter is case-insensitive, so exact (case-sensitive) matching
// is applied here after listing.
func (c *Client) FindFoldersByName(ctx context.Context, mailbox, displayName string) ([]models.MailFolder, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("displayName eq '%s'", escapeODataLiteral(displayName)))

	u := fmt.Sprintf("%s/users/%s/mailFolders?%s",
		c.baseURL, url.PathEscape(mailbox), params.Encode())

	var page foldersPage
	if err := c.getJSON(ctx, u, nil, &page); err != nil {
		return nil, fmt.Errorf("find folders by name: %w", err)
	}

	var out []models.MailFolder
	for _, f := range page.Value {
		if f.DisplayName == displayName {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListFolderNames enumerates the display names of all folders in the mailbox.
// Used as a diagnostic aid when a configured folder does not resolve.
func (c *Client) ListFolderNames(ctx context.Context, mailbox string) ([]string, error) {
	params := url.Values{}
	params.Set("$select", "id,displayName")
	params.Set("$top", "100")

	listURL := fmt.Sprintf("%s/users/%s/mailFolders?%s",
		c.baseURL, url.PathEscape(mailbox), params.Encode())

	var names []string
	for nextURL := listURL; nextURL != ""; {
		var page foldersPage
		if err := c.getJSON(ctx, nextURL, nil, &page); err != nil {
			return nil, fmt.Errorf("list folders: %w", err)
		}
		for _, f := range page.Value {
			names = append(names, f.DisplayName)
		}
		nextURL = page.NextLink
	}
	return names, nil
}

// CreateFolder creates a top-level mail folder with the given display name.
func (c *Client) CreateFolder(ctx context.Context, mailbox, displayName string) (models.MailFolder, error) {
	u := fmt.Sprintf("%s/users/%s/mailFolders", c.baseURL, url.PathEscape(mailbox))

	payload, _ := json.Marshal(map[string]string{"displayName": displayName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return models.MailFolder{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.MailFolder{}, fmt.Errorf("create folder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.MailFolder{}, fmt.Errorf("create folder %q failed (HTTP %d): %s",
			displayName, resp.StatusCode, string(body))
	}

	var folder models.MailFolder
	if err := json.NewDecoder(resp.Body).Decode(&folder); err != nil {
		return models.MailFolder{}, fmt.Errorf("decode created folder: %w", err)
	}
	return folder, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, u string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, u); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx responses to errors, 404 to NotFoundError.
func checkStatus(resp *http.Response, resource string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: resource}
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("graph API returned HTTP %d: %s", resp.StatusCode, string(body))
}

// escapeODataLiteral doubles single quotes inside an OData string literal.
func escapeODataLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
