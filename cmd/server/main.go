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

// Arquiva — Mailbox Ingestion Service
//
// Entry point for the polling service. It:
//  1. Loads configuration (tenant credentials, mailboxes, folder mapping)
//  2. Connects to the database and, optionally, Redis
//  3. Builds the Graph client from OAuth2 client credentials
//  4. Runs the cycle scheduler until an external stop signal
//  5. Serves /health in headless mode
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/arquiva/ingestion/internal/config"
	"github.com/arquiva/ingestion/internal/fetch"
	"github.com/arquiva/ingestion/internal/folders"
	"github.com/arquiva/ingestion/internal/graph"
	"github.com/arquiva/ingestion/internal/health"
	"github.com/arquiva/ingestion/internal/notify"
	"github.com/arquiva/ingestion/internal/process"
	"github.com/arquiva/ingestion/internal/render"
	"github.com/arquiva/ingestion/internal/scheduler"
	"github.com/arquiva/ingestion/internal/service"
	"github.com/arquiva/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailbox ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"mailboxes", len(cfg.Mailboxes),
		"interval", cfg.Interval,
		"emails_per_cycle", cfg.EmailsPerCycle,
		"headless", cfg.Headless,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to the database ---
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// --- Optional Redis notification queue ---
	var publisher *notify.Publisher
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		publisher = notify.NewPublisher(rdb, cfg.Redis.Queue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("connected to Redis", "queue", cfg.Redis.Queue)
	}

	// --- Graph client from OAuth2 client credentials ---
	creds := &clientcredentials.Config{
		ClientID:     cfg.Tenant.ClientID,
		ClientSecret: cfg.Tenant.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.Tenant.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	graphClient := graph.NewClient(creds.Client(ctx), graph.DefaultBaseURL)

	// --- Pipeline components ---
	resolver := folders.NewResolver(graphClient)
	fetcher := fetch.NewFetcher(graphClient)
	renderer := render.NewCommandRenderer(cfg.RenderCommand)

	var notifier process.Notifier
	if publisher != nil {
		notifier = publisher
	}

	processor := process.NewProcessor(graphClient, resolver, st, renderer, notifier, process.Options{
		WorkingRoot:           cfg.WorkingRoot,
		MaxRetries:            cfg.MaxRetries,
		KeepRawCopy:           cfg.KeepRawCopy,
		CleanupFailedAttempts: cfg.CleanupFailedAttempts,
		ProcessedFolder:       cfg.ProcessedFolder,
		ErrorFolder:           cfg.ErrorFolder,
		MailboxAddresses:      cfg.MailboxAddresses(),
	})

	sched := scheduler.New(cfg, resolver, fetcher, processor)
	sched.Subscribe(statusObserver{})

	// --- Startup health check ---
	pingers := map[string]health.Pinger{
		"database": st,
		"provider": tokenPinger{creds: creds},
	}
	if publisher != nil {
		pingers["redis"] = publisher
	}

	if problems := health.StartupCheck(ctx, cfg.WorkingRoot, pingers); len(problems) > 0 {
		for _, p := range problems {
			slog.Warn("startup health check failed", "check", p.Check, "error", p.Err)
		}
		if !cfg.Headless && !promptContinue(problems) {
			slog.Error("startup aborted by operator")
			os.Exit(1)
		}
	}

	// --- Start ---
	ctrl := service.NewController(sched)
	ctrl.Start(ctx)

	if cfg.Headless {
		ready, err := health.Serve(ctx, cfg.Port, pingers)
		if err != nil {
			slog.Error("failed to start health server", "error", err)
			ctrl.Stop()
			os.Exit(1)
		}
		<-ready
	}

	// --- Wait for stop signal, then orderly shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	ctrl.Stop()
	cancel()

	slog.Info("ingestion service stopped")
}

// statusObserver logs the per-mailbox candidate counts after every cycle.
// A UI would subscribe here instead.
type statusObserver struct{}

func (statusObserver) CycleCompleted(s scheduler.Summary) {
	for mailbox, count := range s.Candidates {
		slog.Info("mailbox status", "mailbox", mailbox, "candidates", count)
	}
}

// tokenPinger verifies the provider credentials by fetching a token.
type tokenPinger struct {
	creds *clientcredentials.Config
}

func (t tokenPinger) Ping(ctx context.Context) error {
	_, err := t.creds.TokenSource(ctx).Token()
	return err
}

// promptContinue asks the operator whether to start despite failed checks.
func promptContinue(problems []health.Problem) bool {
	fmt.Fprintln(os.Stderr, "Startup health check reported problems:")
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "  - %s\n", p)
	}
	fmt.Fprint(os.Stderr, "Continue anyway? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
