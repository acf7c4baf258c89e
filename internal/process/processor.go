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

// Package process runs the per-message state machine: working directory,
// optional raw MIME copy, attachments, PDF rendering, metadata document,
// database row, read-flag and relocation — with linear-backoff retries and
// quarantine to the error folder when retries are exhausted.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arquiva/ingestion/internal/graph"
	"github.com/arquiva/ingestion/internal/metadata"
	"github.com/arquiva/ingestion/internal/models"
	"github.com/arquiva/ingestion/internal/notify"
	"github.com/arquiva/ingestion/internal/render"
	"github.com/arquiva/ingestion/internal/store"
)

const (
	// fileCheckAttempts / fileCheckDelay bound the written-file validation.
	// This guards against filesystem or share latency, not application errors.
	fileCheckAttempts = 5
	fileCheckDelay    = 200 * time.Millisecond

	// defaultRetryBaseDelay is the unit of the linear retry backoff.
	defaultRetryBaseDelay = 2 * time.Second
)

// MailClient is the subset of provider message operations the processor needs.
type MailClient interface {
	GetMIMEContent(ctx context.Context, mailbox, messageID string) ([]byte, error)
	ListAttachments(ctx context.Context, mailbox, messageID string) ([]models.AttachmentMeta, error)
	GetAttachmentContent(ctx context.Context, mailbox, messageID, attachmentID string) ([]byte, error)
	MarkRead(ctx context.Context, mailbox, messageID string) error
	MoveMessage(ctx context.Context, mailbox, messageID, destinationFolderID string) error
}

// FolderResolver resolves destination folders, creating them when missing.
type FolderResolver interface {
	EnsureFolder(ctx context.Context, mailbox, name string) (string, error)
	Evict(mailbox, name string)
}

// Recorder persists the database record for a processed message.
type Recorder interface {
	Insert(ctx context.Context, r store.Record) error
}

// Notifier publishes processed-message events downstream. May be nil.
type Notifier interface {
	PublishProcessed(ctx context.Context, event notify.Event) error
}

// Options configures the processor.
type Options struct {
	WorkingRoot           string
	MaxRetries            int
	RetryBaseDelay        time.Duration
	KeepRawCopy           bool
	CleanupFailedAttempts bool
	ProcessedFolder       string
	ErrorFolder           string
	// MailboxAddresses are all configured addresses, used to filter the
	// recipient list written to the metadata document and database row.
	MailboxAddresses []string
}

// Processor drives one message through the processing sequence.
type Processor struct {
	mail     MailClient
	folders  FolderResolver
	recorder Recorder
	renderer render.Renderer
	notifier Notifier
	opts     Options
}

// AttachmentResult records one attachment's outcome. Message-level success is
// independent of individual attachment outcomes: partial capture is accepted.
type AttachmentResult struct {
	Name string
	Err  error
}

// NewProcessor creates a processor. notifier may be nil.
func NewProcessor(mail MailClient, folders FolderResolver, recorder Recorder, renderer render.Renderer, notifier Notifier, opts Options) *Processor {
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	return &Processor{
		mail:     mail,
		folders:  folders,
		recorder: recorder,
		renderer: renderer,
		notifier: notifier,
		opts:     opts,
	}
}

// ProcessMessage runs the state machine for one message. Each retry starts
// from scratch with a fresh working directory; after MaxRetries consecutive
// failures the message is quarantined into the error folder and the last
// error is returned to the cycle loop.
func (p *Processor) ProcessMessage(ctx context.Context, mailbox string, msg *models.Message) error {
	var lastErr error

	for attempt := 0; attempt < p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: baseDelay × retryCount.
			time.Sleep(time.Duration(attempt) * p.opts.RetryBaseDelay)
		}

		dir, err := p.attempt(ctx, mailbox, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		slog.Error("processing attempt failed",
			"mailbox", mailbox,
			"message_id", msg.ID,
			"attempt", attempt+1,
			"max_retries", p.opts.MaxRetries,
			"error", err,
		)

		if p.opts.CleanupFailedAttempts && dir != "" {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				slog.Warn("failed to clean up attempt directory", "dir", dir, "error", rmErr)
			}
		}
	}

	p.quarantine(ctx, mailbox, msg)

	return fmt.Errorf("message %s failed after %d attempts: %w", msg.ID, p.opts.MaxRetries, lastErr)
}

// attempt executes one pass of the processing sequence. It returns the
// working directory it created (possibly holding partial artifacts) along
// with the first error encountered.
func (p *Processor) attempt(ctx context.Context, mailbox string, msg *models.Message) (string, error) {
	dir := filepath.Join(p.opts.WorkingRoot, workDirName(msg.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}

	// Captured filenames in metadata order: raw copy first, then attachments.
	var captured []string

	if p.opts.KeepRawCopy {
		name, err := p.saveRawCopy(ctx, mailbox, msg.ID, dir)
		if err != nil {
			return dir, err
		}
		captured = append(captured, name)
	}

	if msg.HasAttachments {
		results, err := p.saveAttachments(ctx, mailbox, msg.ID, dir)
		if err != nil {
			return dir, err
		}
		for _, r := range results {
			if r.Err == nil {
				captured = append(captured, r.Name)
			}
		}
	}

	pdfPath := filepath.Join(dir, render.PDFFileName)
	if err := p.renderer.Render(ctx, msg.Body, pdfPath); err != nil {
		return dir, fmt.Errorf("render body: %w", err)
	}
	if err := validateFile(pdfPath); err != nil {
		return dir, err
	}

	recipients := metadata.FilterRecipients(msg.To, p.opts.MailboxAddresses, mailbox)

	doc := metadata.New(metadata.Params{
		ReceivedAt:  msg.ReceivedAt,
		Subject:     msg.Subject,
		Directory:   dir,
		PDFName:     render.PDFFileName,
		Attachments: captured,
		Sender:      msg.From.Address,
		Recipients:  recipients,
	})
	docPath := filepath.Join(dir, metadata.FileName)
	if err := doc.WriteFile(docPath); err != nil {
		return dir, err
	}
	if err := validateFile(docPath); err != nil {
		return dir, err
	}

	// The row is the last write of a successful attempt; every file artifact
	// above already exists and validated.
	err := p.recorder.Insert(ctx, store.Record{
		MessageID:    msg.ID,
		Sender:       msg.From.Address,
		ReceivedAt:   msg.ReceivedAt,
		Recipients:   strings.Join(recipients, ";"),
		Subject:      msg.Subject,
		DocumentPath: docPath,
	})
	if err != nil {
		return dir, err
	}

	if err := p.mail.MarkRead(ctx, mailbox, msg.ID); err != nil {
		return dir, fmt.Errorf("mark read: %w", err)
	}
	if err := p.moveTo(ctx, mailbox, msg.ID, p.opts.ProcessedFolder); err != nil {
		return dir, fmt.Errorf("move to processed folder: %w", err)
	}

	p.notifyProcessed(ctx, mailbox, msg, docPath)

	slog.Info("message processed",
		"mailbox", mailbox,
		"message_id", msg.ID,
		"subject", msg.Subject,
		"dir", dir,
		"attachments", len(captured),
	)
	return dir, nil
}

// saveRawCopy fetches the full MIME content and writes it verbatim as
// {dir}.eml inside the working directory.
func (p *Processor) saveRawCopy(ctx context.Context, mailbox, messageID, dir string) (string, error) {
	raw, err := p.mail.GetMIMEContent(ctx, mailbox, messageID)
	if err != nil {
		return "", fmt.Errorf("fetch MIME content: %w", err)
	}

	name := filepath.Base(dir) + ".eml"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write raw copy: %w", err)
	}
	if err := validateFile(path); err != nil {
		return "", err
	}
	return name, nil
}

// saveAttachments downloads each attachment's content by its own call.
// A failure on one attachment is logged and recorded in its result; it does
// not abort the message. An error listing the attachments does.
func (p *Processor) saveAttachments(ctx context.Context, mailbox, messageID, dir string) ([]AttachmentResult, error) {
	metas, err := p.mail.ListAttachments(ctx, mailbox, messageID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	results := make([]AttachmentResult, 0, len(metas))
	used := make(map[string]bool, len(metas))
	for i, meta := range metas {
		name := attachmentFileName(meta.Name, i)
		if used[name] {
			name = fmt.Sprintf("%d_%s", i+1, name)
		}
		used[name] = true

		content, err := p.mail.GetAttachmentContent(ctx, mailbox, messageID, meta.ID)
		if err != nil {
			slog.Warn("skipping attachment",
				"mailbox", mailbox,
				"message_id", messageID,
				"attachment", meta.Name,
				"error", err,
			)
			results = append(results, AttachmentResult{Name: name, Err: err})
			continue
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			slog.Warn("failed to write attachment",
				"mailbox", mailbox,
				"message_id", messageID,
				"attachment", name,
				"error", err,
			)
			results = append(results, AttachmentResult{Name: name, Err: err})
			continue
		}

		results = append(results, AttachmentResult{Name: name})
	}

	return results, nil
}

// moveTo resolves the destination folder and moves the message. A 404 on a
// cached folder ID evicts the cache entry and re-resolves once before failing.
func (p *Processor) moveTo(ctx context.Context, mailbox, messageID, folderName string) error {
	destID, err := p.folders.EnsureFolder(ctx, mailbox, folderName)
	if err != nil {
		return err
	}

	err = p.mail.MoveMessage(ctx, mailbox, messageID, destID)
	if err == nil || !graph.IsNotFound(err) {
		return err
	}

	slog.Warn("cached folder ID answered 404, re-resolving",
		"mailbox", mailbox,
		"folder", folderName,
	)
	p.folders.Evict(mailbox, folderName)

	destID, rerr := p.folders.EnsureFolder(ctx, mailbox, folderName)
	if rerr != nil {
		return rerr
	}
	return p.mail.MoveMessage(ctx, mailbox, messageID, destID)
}

// quarantine sets the read flag and files the message into the error folder.
// Both calls are best-effort: a failure here is logged and swallowed so a
// broken error folder cannot re-enter the retry loop.
func (p *Processor) quarantine(ctx context.Context, mailbox string, msg *models.Message) {
	if err := p.mail.MarkRead(ctx, mailbox, msg.ID); err != nil {
		slog.Warn("failed to mark quarantined message read",
			"mailbox", mailbox,
			"message_id", msg.ID,
			"error", err,
		)
	}

	if err := p.moveTo(ctx, mailbox, msg.ID, p.opts.ErrorFolder); err != nil {
		slog.Error("failed to move message to error folder",
			"mailbox", mailbox,
			"message_id", msg.ID,
			"folder", p.opts.ErrorFolder,
			"error", err,
		)
		return
	}

	slog.Warn("message quarantined",
		"mailbox", mailbox,
		"message_id", msg.ID,
		"folder", p.opts.ErrorFolder,
	)
}

// notifyProcessed publishes the downstream event. Failures only log: the
// message is already recorded and relocated by this point.
func (p *Processor) notifyProcessed(ctx context.Context, mailbox string, msg *models.Message, docPath string) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.PublishProcessed(ctx, notify.Event{
		MessageID:    msg.ID,
		Mailbox:      mailbox,
		Sender:       msg.From.Address,
		Subject:      msg.Subject,
		DocumentPath: docPath,
	})
	if err != nil {
		slog.Warn("failed to publish processed event",
			"mailbox", mailbox,
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// workDirName builds a collision-free directory name: a short prefix of the
// message ID plus a nanosecond timestamp, so retried attempts never collide.
func workDirName(messageID string) string {
	return fmt.Sprintf("%s_%d", shortID(messageID), time.Now().UTC().UnixNano())
}

// shortID keeps the first 8 filesystem-safe characters of the provider ID.
func shortID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= 8 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return uuid.New().String()[:8]
	}
	return b.String()
}

// attachmentFileName sanitises an attachment name for the working directory.
func attachmentFileName(name string, index int) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Sprintf("attachment_%d", index+1)
	}
	return name
}

// validateFile reopens a freshly written file for exclusive access and checks
// it is non-empty, retrying the check a fixed number of times.
func validateFile(path string) error {
	var lastErr error
	for i := 0; i < fileCheckAttempts; i++ {
		if i > 0 {
			time.Sleep(fileCheckDelay)
		}

		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			lastErr = err
			continue
		}
		info, err := f.Stat()
		f.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if info.Size() == 0 {
			lastErr = fmt.Errorf("file is empty")
			continue
		}
		return nil
	}
	return fmt.Errorf("validate %s: %w", path, lastErr)
}
