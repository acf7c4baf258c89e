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

// Arquiva — Mailbox Drain Command
//
// One-shot catch-up tool: runs processing cycles back-to-back until every
// configured mailbox reports zero candidates, then exits. Intended for
// working through a backlog after downtime, without waiting for the timer
// cadence of the long-running service.
//
// Usage:
//
//	go run ./cmd/drain/ [--max-cycles 100]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/arquiva/ingestion/internal/config"
	"github.com/arquiva/ingestion/internal/fetch"
	"github.com/arquiva/ingestion/internal/folders"
	"github.com/arquiva/ingestion/internal/graph"
	"github.com/arquiva/ingestion/internal/process"
	"github.com/arquiva/ingestion/internal/render"
	"github.com/arquiva/ingestion/internal/scheduler"
	"github.com/arquiva/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	maxCycles := flag.Int("max-cycles", 100, "Safety bound on the number of cycles")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	creds := &clientcredentials.Config{
		ClientID:     cfg.Tenant.ClientID,
		ClientSecret: cfg.Tenant.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.Tenant.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	graphClient := graph.NewClient(creds.Client(ctx), graph.DefaultBaseURL)

	resolver := folders.NewResolver(graphClient)
	fetcher := fetch.NewFetcher(graphClient)
	renderer := render.NewCommandRenderer(cfg.RenderCommand)

	processor := process.NewProcessor(graphClient, resolver, st, renderer, nil, process.Options{
		WorkingRoot:           cfg.WorkingRoot,
		MaxRetries:            cfg.MaxRetries,
		KeepRawCopy:           cfg.KeepRawCopy,
		CleanupFailedAttempts: cfg.CleanupFailedAttempts,
		ProcessedFolder:       cfg.ProcessedFolder,
		ErrorFolder:           cfg.ErrorFolder,
		MailboxAddresses:      cfg.MailboxAddresses(),
	})

	sched := scheduler.New(cfg, resolver, fetcher, processor)
	capture := &captureObserver{}
	sched.Subscribe(capture)

	totalProcessed := 0
	for cycle := 1; cycle <= *maxCycles; cycle++ {
		slog.Info("drain cycle starting", "cycle", cycle)
		sched.RunCycle(ctx)

		totalProcessed += capture.last.Processed

		if capture.last.TotalCandidates == 0 {
			slog.Info("all mailboxes drained", "cycles", cycle, "processed", totalProcessed)
			return
		}
		if capture.last.Processed == 0 && capture.last.Failed == 0 {
			slog.Warn("no progress this cycle, stopping",
				"cycles", cycle,
				"remaining_candidates", capture.last.TotalCandidates,
			)
			return
		}
	}

	slog.Warn("cycle bound reached before mailboxes drained",
		"max_cycles", *maxCycles,
		"processed", totalProcessed,
	)
}

// captureObserver keeps the most recent cycle summary.
type captureObserver struct {
	last scheduler.Summary
}

func (c *captureObserver) CycleCompleted(s scheduler.Summary) {
	c.last = s
}
