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

// Package service wraps the scheduler with an idempotent start/stop surface.
package service

import (
	"context"
	"log/slog"
	"sync"
)

// Runner is the long-running loop the controller owns; it must return when
// its context is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Controller owns the scheduler goroutine's lifecycle.
type Controller struct {
	runner Runner

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewController creates a controller for the given runner.
func NewController(runner Runner) *Controller {
	return &Controller{runner: runner}
}

// Start launches the runner. Calling Start while running is a no-op with a
// warning, not an error.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		slog.Warn("service already running, ignoring start")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runner.Run(runCtx)
	}()

	slog.Info("service started")
}

// Stop cancels the runner and waits for any in-flight cycle to finish.
// Calling Stop while stopped is a no-op with a warning.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		slog.Warn("service not running, ignoring stop")
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	slog.Info("service stopped")
}

// Running reports whether the runner is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
