package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.PollInterval() != 20*time.Second {
		t.Fatalf("poll interval: got %v", cfg.PollInterval())
	}
	if cfg.PollLeeway() != 5*time.Second {
		t.Fatalf("poll leeway: got %v", cfg.PollLeeway())
	}
	if cfg.RequestsPerSec != 4 {
		t.Fatalf("requests per sec: got %d", cfg.RequestsPerSec)
	}
	if len(cfg.AccountEmails()) != 0 {
		t.Fatalf("expected no accounts, got %v", cfg.AccountEmails())
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `oauth:
  client_id: id-123
  client_secret: secret-456
poll_interval_sec: 45
accounts:
  alice@example.com:
    filter_query: "label:work is:unread"
    max_messages: 10
    show_snippets: false
    allow_quicklook: true
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.OAuth.ClientID != "id-123" || cfg.OAuth.ClientSecret != "secret-456" {
		t.Fatalf("oauth: %+v", cfg.OAuth)
	}
	if cfg.PollInterval() != 45*time.Second {
		t.Fatalf("poll interval: got %v", cfg.PollInterval())
	}
	if cfg.PollLeeway() != 5*time.Second {
		t.Fatalf("unset leeway should default, got %v", cfg.PollLeeway())
	}

	s := cfg.AccountSettingsFor("alice@example.com")
	if s.FilterQuery != "label:work is:unread" || s.MaxMessages != 10 {
		t.Fatalf("settings: %+v", s)
	}
	if s.ShowSnippets || !s.AllowQuicklook {
		t.Fatalf("settings: %+v", s)
	}
}

func TestAccountSettingsForUnknownEmail(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := cfg.AccountSettingsFor("nobody@example.com"); got != DefaultAccountSettings() {
		t.Fatalf("expected defaults for unknown account, got %+v", got)
	}
}

func TestSetAndRemoveAccountRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cfg.OAuth = OAuthSettings{ClientID: "id", ClientSecret: "secret"}

	custom := AccountSettings{
		FilterQuery:    "in:INBOX is:unread",
		MaxMessages:    3,
		ShowSnippets:   true,
		AllowQuicklook: false,
	}
	if err := cfg.SetAccount("alice@example.com", custom); err != nil {
		t.Fatalf("set alice: %v", err)
	}
	if err := cfg.SetAccount("bob@example.com", DefaultAccountSettings()); err != nil {
		t.Fatalf("set bob: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	wantEmails := []string{"alice@example.com", "bob@example.com"}
	gotEmails := reloaded.AccountEmails()
	if len(gotEmails) != 2 || gotEmails[0] != wantEmails[0] || gotEmails[1] != wantEmails[1] {
		t.Fatalf("emails: got %v, want %v", gotEmails, wantEmails)
	}
	if got := reloaded.AccountSettingsFor("alice@example.com"); got != custom {
		t.Fatalf("alice settings: got %+v, want %+v", got, custom)
	}
	if reloaded.OAuth.ClientID != "id" {
		t.Fatalf("oauth not persisted: %+v", reloaded.OAuth)
	}

	if err := reloaded.RemoveAccount("alice@example.com"); err != nil {
		t.Fatalf("remove alice: %v", err)
	}
	final, err := Load(path)
	if err != nil {
		t.Fatalf("final reload failed: %v", err)
	}
	if got := final.AccountEmails(); len(got) != 1 || got[0] != "bob@example.com" {
		t.Fatalf("after removal: got %v", got)
	}
}
