package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nhle/travelbot/internal/model"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IMAP.Mailbox != "INBOX" {
		t.Fatalf("mailbox %q", cfg.IMAP.Mailbox)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("max attempts %d", cfg.Retry.MaxAttempts)
	}
	if !cfg.IMAP.IdleEnabled {
		t.Fatal("idle should default on")
	}
	if cfg.Guard.MaxReplies != 3 || cfg.Guard.WindowSec != 3600 {
		t.Fatalf("guard defaults: %+v", cfg.Guard)
	}
}

func TestLoadConfigOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
imap:
  host: mail.example.com
  username: bot@example.com
  idle_enabled: false
guard:
  max_replies: 5
  default_reply_to: me@example.com
store:
  path: /var/lib/travelbot/state.db
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := model.LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IMAP.Host != "mail.example.com" {
		t.Fatalf("host %q", cfg.IMAP.Host)
	}
	if cfg.IMAP.IdleEnabled {
		t.Fatal("idle override lost")
	}
	if cfg.Guard.MaxReplies != 5 {
		t.Fatalf("max replies %d", cfg.Guard.MaxReplies)
	}
	if cfg.Guard.DefaultReplyTo != "me@example.com" {
		t.Fatalf("default reply-to %q", cfg.Guard.DefaultReplyTo)
	}
	if cfg.Store.Path != "/var/lib/travelbot/state.db" {
		t.Fatalf("store path %q", cfg.Store.Path)
	}

	// Untouched keys keep their defaults.
	if cfg.IMAP.Port != "993" {
		t.Fatalf("port %q", cfg.IMAP.Port)
	}
	if cfg.LLM.MaxTokens != 8192 {
		t.Fatalf("max tokens %d", cfg.LLM.MaxTokens)
	}
}

func TestLoadConfigMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("imap: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := model.LoadConfig(path); err == nil {
		t.Fatal("expected an error")
	}
}
