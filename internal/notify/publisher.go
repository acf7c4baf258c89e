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

// Package notify publishes processed-message summaries to a Redis list for
// downstream consumers. Publishing is optional and best-effort: the pipeline
// succeeds or fails on its own artifacts, not on the notification.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event summarises one successfully processed message.
type Event struct {
	ID           string `json:"id"`
	MessageID    string `json:"message_id"`
	Mailbox      string `json:"mailbox"`
	Sender       string `json:"sender"`
	Subject      string `json:"subject"`
	DocumentPath string `json:"document_path"`
	ProcessedAt  string `json:"processed_at"`
}

// Publisher sends events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// PublishProcessed serialises the event and pushes it onto the queue.
func (p *Publisher) PublishProcessed(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.ProcessedAt == "" {
		event.ProcessedAt = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal processed event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published processed event",
		"event_id", event.ID,
		"message_id", event.MessageID,
		"mailbox", event.Mailbox,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
