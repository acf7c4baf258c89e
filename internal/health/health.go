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

// Package health runs the startup health check and serves the liveness
// endpoint in headless mode.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Pinger is anything that can probe its backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Problem is one failed startup check.
type Problem struct {
	Check string
	Err   error
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %v", p.Check, p.Err)
}

// StartupCheck verifies the working root is writable and that every provided
// pinger answers. It returns the problems found; deciding whether they block
// startup (interactive prompt) or only warn (headless) is the caller's call.
func StartupCheck(ctx context.Context, workingRoot string, pingers map[string]Pinger) []Problem {
	var problems []Problem

	if err := checkWritable(workingRoot); err != nil {
		problems = append(problems, Problem{Check: "working root", Err: err})
	}

	for name, p := range pingers {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			problems = append(problems, Problem{Check: name, Err: err})
		}
	}

	return problems
}

// checkWritable creates and removes a probe file under root.
func checkWritable(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create working root: %w", err)
	}
	probe := filepath.Join(root, ".probe_"+uuid.New().String())
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("working root not writable: %w", err)
	}
	return os.Remove(probe)
}

// Handler answers 200 when every configured pinger responds and 503 on the
// first failure.
func Handler(pingers map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for name, p := range pingers {
			if p == nil {
				continue
			}
			if err := p.Ping(r.Context()); err != nil {
				slog.Warn("health probe failed", "check", name, "error", err)
				http.Error(w, name+" unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	}
}

// Serve starts the /health endpoint. The returned channel closes once the
// listener is accepting; the server shuts down with the context.
func Serve(ctx context.Context, port int, pingers map[string]Pinger) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", Handler(pingers))

	server := &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind health port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("health server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("health server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	return ready, nil
}
