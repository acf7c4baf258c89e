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

// Package scheduler drives the polling loop: once per tick it visits every
// configured mailbox in configuration order, strictly sequentially, and hands
// candidate messages to the processor. A tick that fires while a cycle is
// still running is skipped, never queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arquiva/ingestion/internal/config"
	"github.com/arquiva/ingestion/internal/models"
)

// FolderSource resolves the folders a cycle reads from and writes to.
type FolderSource interface {
	SourceFolderID(ctx context.Context, mailbox, folderName string) (string, error)
	EnsureFolder(ctx context.Context, mailbox, name string) (string, error)
}

// Fetcher selects candidate messages from a source folder.
type Fetcher interface {
	Count(ctx context.Context, mailbox, folderID string, unreadOnly bool) int
	Next(ctx context.Context, mailbox, folderID string, unreadOnly bool) *models.Message
}

// Processor runs the per-message state machine.
type Processor interface {
	ProcessMessage(ctx context.Context, mailbox string, msg *models.Message) error
}

// Summary aggregates one cycle's outcome for observers.
type Summary struct {
	// Candidates holds the per-mailbox candidate count seen at cycle start,
	// keyed by the configured (case-preserved) address.
	Candidates map[string]int
	// TotalCandidates is the sum across mailboxes.
	TotalCandidates int
	Processed       int
	Failed          int
	Started         time.Time
	Elapsed         time.Duration
}

// Observer receives a summary after each completed cycle. Observers run on
// the scheduler goroutine and must not block.
type Observer interface {
	CycleCompleted(s Summary)
}

// Scheduler is the periodic cycle driver.
type Scheduler struct {
	cfg       *config.Config
	folders   FolderSource
	fetcher   Fetcher
	processor Processor
	observers []Observer

	// inProgress prevents a slow cycle from overlapping the next tick.
	inProgress atomic.Bool
}

// New creates a scheduler over the configured mailboxes.
func New(cfg *config.Config, folders FolderSource, fetcher Fetcher, processor Processor) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		folders:   folders,
		fetcher:   fetcher,
		processor: processor,
	}
}

// Subscribe registers an observer. Must be called before Run.
func (s *Scheduler) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

// Run executes an immediate first cycle, then one per interval until the
// context is cancelled. Cancellation is observed between cycles only; an
// in-flight cycle always finishes.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("cycle scheduler starting",
		"interval", s.cfg.Interval,
		"mailboxes", len(s.cfg.Mailboxes),
	)

	// Fast first feedback: one cycle outside the timer cadence.
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cycle scheduler stopping")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one cycle unless another is already in progress, in
// which case this firing is a no-op. Returns whether the cycle ran.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	if !s.inProgress.CompareAndSwap(false, true) {
		slog.Warn("cycle still in progress, skipping tick")
		return false
	}
	defer s.inProgress.Store(false)

	summary := s.cycle(ctx)

	for _, o := range s.observers {
		o.CycleCompleted(summary)
	}
	return true
}

// cycle visits every mailbox once. Mailbox-level errors are logged and do
// not stop iteration over the remaining mailboxes.
func (s *Scheduler) cycle(ctx context.Context) Summary {
	summary := Summary{
		Candidates: make(map[string]int, len(s.cfg.Mailboxes)),
		Started:    time.Now(),
	}

	for _, mb := range s.cfg.Mailboxes {
		summary.Candidates[mb.Address] = 0

		folderID, err := s.folders.SourceFolderID(ctx, mb.Address, mb.SourceFolderName)
		if err != nil {
			slog.Error("skipping mailbox, source folder did not resolve",
				"mailbox", mb.Address,
				"folder", mb.SourceFolderName,
				"error", err,
			)
			continue
		}

		count := s.fetcher.Count(ctx, mb.Address, folderID, s.cfg.ProcessOnlyUnread)
		summary.Candidates[mb.Address] = count
		summary.TotalCandidates += count
		if count == 0 {
			continue
		}

		if _, err := s.folders.EnsureFolder(ctx, mb.Address, s.cfg.ProcessedFolder); err != nil {
			slog.Error("skipping mailbox, processed folder unavailable",
				"mailbox", mb.Address,
				"folder", s.cfg.ProcessedFolder,
				"error", err,
			)
			continue
		}

		quota := count
		if quota > s.cfg.EmailsPerCycle {
			quota = s.cfg.EmailsPerCycle
		}

		for i := 0; i < quota; i++ {
			msg := s.fetcher.Next(ctx, mb.Address, folderID, s.cfg.ProcessOnlyUnread)
			if msg == nil {
				break
			}

			if err := s.processor.ProcessMessage(ctx, mb.Address, msg); err != nil {
				slog.Error("message processing failed",
					"mailbox", mb.Address,
					"message_id", msg.ID,
					"error", err,
				)
				summary.Failed++
				continue
			}
			summary.Processed++
		}
	}

	summary.Elapsed = time.Since(summary.Started)
	slog.Info("cycle complete",
		"candidates", summary.TotalCandidates,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed,
	)
	return summary
}
