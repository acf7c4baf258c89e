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

// Package config loads configuration from config.yaml and environment variables.
//
// The configuration is loaded once at startup into an immutable Config struct
// that is passed into each component constructor. Nothing in the service reads
// ambient configuration after that point; a live reload would be an explicit
// load-and-swap at the owning point (main), not a global lookup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WellKnownInbox is the provider token for the canonical receiving folder.
// A mailbox whose source folder resolves to this token is polled through the
// well-known-folder shortcut instead of a display-name lookup.
const WellKnownInbox = "Inbox"

// TenantConfig holds the application credentials for the mail provider.
type TenantConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Mailbox is one monitored address with its effective source folder.
type Mailbox struct {
	// Address preserves the configured casing for display and provider calls.
	Address string
	// SourceFolderName is empty when the canonical inbox should be polled.
	SourceFolderName string
}

// Key returns the normalized (lowercase) form of the address used for lookups.
func (m Mailbox) Key() string { return strings.ToLower(m.Address) }

// DatabaseConfig selects one of the three supported driver families.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres", "mysql" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// RedisConfig configures the optional downstream notification queue.
// An empty URL disables publishing.
type RedisConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Tenant    TenantConfig
	Mailboxes []Mailbox

	Interval          time.Duration
	EmailsPerCycle    int
	MaxRetries        int
	ProcessOnlyUnread bool

	WorkingRoot           string
	ProcessedFolder       string
	ErrorFolder           string
	KeepRawCopy           bool
	CleanupFailedAttempts bool

	RenderCommand string

	Database DatabaseConfig
	Redis    RedisConfig

	// Headless suppresses interactive prompts; startup health-check failures
	// short of fatal configuration errors only warn.
	Headless bool
	Port     int
}

// MailboxAddresses returns the configured addresses in configuration order,
// case-preserved.
func (c *Config) MailboxAddresses() []string {
	out := make([]string, len(c.Mailboxes))
	for i, m := range c.Mailboxes {
		out[i] = m.Address
	}
	return out
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Tenant struct {
		TenantID     string `yaml:"tenant_id"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"tenant"`
	Mailboxes   string `yaml:"mailboxes"`    // semicolon-delimited addresses
	InboxFolder string `yaml:"inbox_folder"` // single name or addr:folder;addr:folder mapping

	IntervalSeconds   int   `yaml:"interval_seconds"`
	EmailsPerCycle    int   `yaml:"emails_per_cycle"`
	MaxRetries        int   `yaml:"max_retries"`
	ProcessOnlyUnread *bool `yaml:"process_only_unread"`

	WorkingRoot           string `yaml:"working_root"`
	ProcessedFolder       string `yaml:"processed_folder"`
	ErrorFolder           string `yaml:"error_folder"`
	KeepRawCopy           bool   `yaml:"keep_raw_copy"`
	CleanupFailedAttempts bool   `yaml:"cleanup_failed_attempts"`

	RenderCommand string `yaml:"render_command"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`

	Headless bool `yaml:"headless"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. Configuration errors are
// fatal: the caller must not start the scheduler when Load fails.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse builds and validates a Config from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Tenant: TenantConfig{
			TenantID:     raw.Tenant.TenantID,
			ClientID:     raw.Tenant.ClientID,
			ClientSecret: raw.Tenant.ClientSecret,
		},
		Interval:              time.Duration(intOrDefault(raw.IntervalSeconds, 60)) * time.Second,
		EmailsPerCycle:        intOrDefault(raw.EmailsPerCycle, 10),
		MaxRetries:            intOrDefault(raw.MaxRetries, 3),
		ProcessOnlyUnread:     boolOrDefault(raw.ProcessOnlyUnread, true),
		WorkingRoot:           raw.WorkingRoot,
		ProcessedFolder:       firstNonEmpty(raw.ProcessedFolder, "Processados"),
		ErrorFolder:           firstNonEmpty(raw.ErrorFolder, "Errors"),
		KeepRawCopy:           raw.KeepRawCopy,
		CleanupFailedAttempts: raw.CleanupFailedAttempts,
		RenderCommand:         firstNonEmpty(raw.RenderCommand, "wkhtmltopdf"),
		Database:              raw.Database,
		Redis:                 raw.Redis,
		Headless:              raw.Headless,
		Port:                  envOrDefaultInt("PORT", 8080),
	}

	if cfg.Tenant.TenantID == "" || cfg.Tenant.ClientID == "" || cfg.Tenant.ClientSecret == "" {
		return nil, fmt.Errorf("tenant credentials incomplete — tenant_id, client_id and client_secret are all required")
	}

	addresses, err := parseAddressList(raw.Mailboxes)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no mailboxes configured — check the mailboxes setting")
	}

	defaultFolder, overrides, err := ParseInboxFolderSpec(raw.InboxFolder)
	if err != nil {
		return nil, err
	}

	for _, addr := range addresses {
		folder := defaultFolder
		if name, ok := overrides[strings.ToLower(addr)]; ok {
			folder = name
		}
		if strings.EqualFold(folder, WellKnownInbox) {
			folder = ""
		}
		cfg.Mailboxes = append(cfg.Mailboxes, Mailbox{
			Address:          addr,
			SourceFolderName: folder,
		})
	}

	if cfg.Interval < time.Second {
		return nil, fmt.Errorf("interval_seconds must be at least 1, got %s", cfg.Interval)
	}
	if cfg.EmailsPerCycle < 1 {
		return nil, fmt.Errorf("emails_per_cycle must be at least 1, got %d", cfg.EmailsPerCycle)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.WorkingRoot == "" {
		return nil, fmt.Errorf("working_root is required")
	}

	switch cfg.Database.Driver {
	case "postgres", "mysql", "sqlite":
	case "":
		return nil, fmt.Errorf("database.driver is required")
	default:
		return nil, fmt.Errorf("unsupported database driver %q (want postgres, mysql or sqlite)", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	return cfg, nil
}

// parseAddressList splits a semicolon-delimited address list, preserving
// configured order and casing. Duplicate addresses (case-insensitive) are
// rejected: each configured address must have exactly one effective source
// folder.
func parseAddressList(list string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(list, ";") {
		addr := strings.TrimSpace(part)
		if addr == "" {
			continue
		}
		if !strings.Contains(addr, "@") {
			return nil, fmt.Errorf("malformed mailbox address %q", addr)
		}
		key := strings.ToLower(addr)
		if seen[key] {
			return nil, fmt.Errorf("duplicate mailbox address %q", addr)
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out, nil
}

// ParseInboxFolderSpec interprets the inbox_folder setting. The spec is
// either a single folder name applied to all mailboxes, or an
// "addr:folder;addr:folder" mapping; with a mapping, unmapped addresses fall
// back to the canonical inbox. Override keys are normalized to lowercase.
func ParseInboxFolderSpec(spec string) (defaultFolder string, overrides map[string]string, err error) {
	overrides = make(map[string]string)

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", overrides, nil
	}

	if !strings.Contains(spec, ":") {
		return spec, overrides, nil
	}

	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, folder, ok := strings.Cut(part, ":")
		addr = strings.TrimSpace(addr)
		folder = strings.TrimSpace(folder)
		if !ok || addr == "" || folder == "" {
			return "", nil, fmt.Errorf("malformed inbox_folder entry %q (want address:folderName)", part)
		}
		overrides[strings.ToLower(addr)] = folder
	}

	return "", overrides, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func intOrDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func boolOrDefault(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
