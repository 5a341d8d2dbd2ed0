package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagenotes/internal/autosave"
	"github.com/starford/pagenotes/internal/models"
	"github.com/starford/pagenotes/internal/notestore"
	"github.com/starford/pagenotes/internal/urlnorm"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Storage  StorageConfig     `yaml:"storage"`
	Notes    NotesConfig       `yaml:"notes"`
	Autosave AutosaveConfig    `yaml:"autosave"`
	URLRules []URLRuleConfig   `yaml:"url_rules"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Notes.Validate(); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	if err := c.Autosave.Validate(); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	for i := range c.URLRules {
		if err := c.URLRules[i].Validate(); err != nil {
			return fmt.Errorf("url_rules[%d]: %w", i, err)
		}
	}
	return c.Auth.Validate()
}

// Normalizer builds the URL normalizer. An empty rule list keeps the
// built-in table.
func (c *Config) Normalizer() (*urlnorm.Normalizer, error) {
	if len(c.URLRules) == 0 {
		return urlnorm.Default(), nil
	}
	patterns := make([]string, len(c.URLRules))
	include := make([]bool, len(c.URLRules))
	for i, r := range c.URLRules {
		patterns[i], include[i] = r.Pattern, r.IncludeQuery
	}
	rules, err := urlnorm.CompileRules(patterns, include)
	if err != nil {
		return nil, err
	}
	return urlnorm.New(rules), nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects the key-value backend. Path is a directory for fs
// and a database file for sqlite; memory ignores it.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendFS, BackendSQLite)),
		validation.Field(&c.Path, validation.When(c.Backend != BackendMemory, validation.Required)),
	)
}

// NotesConfig holds note formatting settings.
type NotesConfig struct {
	KeyPrefix      string `yaml:"key_prefix"`
	MaxTitleLength int    `yaml:"max_title_length"`
	PreviewLength  int    `yaml:"preview_length"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.KeyPrefix, validation.Required),
		validation.Field(&c.MaxTitleLength, validation.Required, validation.Min(1)),
		validation.Field(&c.PreviewLength, validation.Required, validation.Min(1)),
	)
}

// AutosaveConfig holds the debounce window.
type AutosaveConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// Validate validates the autosave configuration.
func (c *AutosaveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Delay, validation.Required, validation.Min(time.Millisecond)),
	)
}

// URLRuleConfig is one entry of the ordered url_rules list.
type URLRuleConfig struct {
	Pattern      string `yaml:"pattern"`
	IncludeQuery bool   `yaml:"include_query"`
}

// Validate checks that Pattern compiles.
func (c *URLRuleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Pattern, validation.Required, validation.By(compiles)),
	)
}

func compiles(v any) error {
	s, _ := v.(string)
	if _, err := regexp.Compile(s); err != nil {
		return errors.New("must be a valid regular expression")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Backend: BackendFS,
			Path:    "./data",
		},
		Notes: NotesConfig{
			KeyPrefix:      notestore.DefaultKeyPrefix,
			MaxTitleLength: models.DefaultMaxTitleLength,
			PreviewLength:  models.DefaultPreviewLength,
		},
		Autosave: AutosaveConfig{
			Delay: autosave.DefaultDelay,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
