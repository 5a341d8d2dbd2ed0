package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/pagenotes/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     StorageConfig
		wantErr bool
	}{
		{"memory without path", StorageConfig{Backend: BackendMemory}, false},
		{"fs with path", StorageConfig{Backend: BackendFS, Path: "./data"}, false},
		{"sqlite without path", StorageConfig{Backend: BackendSQLite}, true},
		{"unknown backend", StorageConfig{Backend: "redis", Path: "x"}, true},
		{"empty backend", StorageConfig{Path: "x"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNotesAndAutosaveConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Notes.MaxTitleLength = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative title length should fail")
	}

	cfg = NewDefaultConfig()
	cfg.Autosave.Delay = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero delay should fail")
	}
}

func TestURLRules(t *testing.T) {
	cfg := NewDefaultConfig()
	n, err := cfg.Normalizer()
	if err != nil {
		t.Fatal(err)
	}
	if got := n.Normalize("https://www.google.com/search?q=a"); got != "https://www.google.com/search?q=a" {
		t.Errorf("default rules not applied: %q", got)
	}

	cfg.URLRules = []URLRuleConfig{{Pattern: `example\.com/search`, IncludeQuery: true}}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	n, err = cfg.Normalizer()
	if err != nil {
		t.Fatal(err)
	}
	if got := n.Normalize("https://example.com/search?z=1&a=2"); got != "https://example.com/search?a=2&z=1" {
		t.Errorf("custom rule not applied: %q", got)
	}
	if got := n.Normalize("https://www.google.com/search?q=a"); got != "https://www.google.com/search" {
		t.Errorf("custom rules should replace defaults: %q", got)
	}

	cfg.URLRules = []URLRuleConfig{{Pattern: `(`}}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "url_rules[0]") {
		t.Errorf("bad pattern err = %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("PAGENOTES_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `app:
  log_level: debug
  http:
    port: 9090
storage:
  backend: sqlite
  path: ./notes.db
autosave:
  delay: 250ms
url_rules:
  - pattern: 'news\.example\.com/item'
    include_query: true
auth:
  mode: token
  token: ${PAGENOTES_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil || !found {
		t.Fatalf("LoadOptional: found=%v err=%v", found, err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Storage.Backend != BackendSQLite || cfg.Auth.Token != "from-env" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Autosave.Delay != 250*time.Millisecond {
		t.Errorf("delay = %v", cfg.Autosave.Delay)
	}
	if cfg.Notes.KeyPrefix != "notes_" {
		t.Errorf("unset section should keep defaults, prefix = %q", cfg.Notes.KeyPrefix)
	}
	if len(cfg.URLRules) != 1 || !cfg.URLRules[0].IncludeQuery {
		t.Errorf("url rules = %+v", cfg.URLRules)
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("absent file reported as found")
	}
	if cfg.Storage.Backend != BackendFS {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
}
