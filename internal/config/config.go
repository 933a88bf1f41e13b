package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Intake contains the endpoints of the intake (scanning/storage) service and
// of the collaborator endpoints that hand out upload sessions.
type Intake struct {
	// InitiateURL is requested before every upload. A "{ticket}" placeholder
	// is replaced with the ticket identifier of the host form.
	InitiateURL string `toml:"initiate_url"`
	// StatusURL is polled when upload.strategy is "polling". A "{reference}"
	// placeholder is replaced with the session reference.
	StatusURL      string `toml:"status_url"`
	FileField      string `toml:"file_field"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Upload contains the confirmation strategy and concurrency policy.
type Upload struct {
	Strategy       string `toml:"strategy"`
	MaxFiles       int    `toml:"max_files"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	PollAttempts   int    `toml:"poll_attempts"`
	// OneAtATime disables selection while any upload is unconfirmed.
	OneAtATime bool `toml:"one_at_a_time"`
}

// Form describes how confirmed references are written into the host form.
type Form struct {
	Mode             string `toml:"mode"`
	AttachmentsField string `toml:"attachments_field"`
	ReferencesField  string `toml:"references_field"`
}

// Draft contains configuration for the persisted host form draft.
type Draft struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for upscan.
//
// Configuration sections by subsystem:
//   - Intake: session initiation, submission and status endpoints
//   - Upload: confirmation strategy, polling budget and the file cap
//   - Form: hidden field layout of the host form
//   - Draft: on-disk copy of the host form between runs
//   - Logging: log format, level, and directory
type Config struct {
	Intake  Intake  `toml:"intake"`
	Upload  Upload  `toml:"upload"`
	Form    Form    `toml:"form"`
	Draft   Draft   `toml:"draft"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/upscan/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("upscan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories holding the draft database and logs.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Logging.Dir}
	if c.Draft.Enabled {
		dirs = append(dirs, filepath.Dir(c.Draft.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// InitiateURLFor returns the initiation endpoint for a ticket. The ticket is
// path-escaped so it always fills a single segment.
func (c *Config) InitiateURLFor(ticketID string) string {
	return strings.ReplaceAll(c.Intake.InitiateURL, "{ticket}", url.PathEscape(ticketID))
}

// PollInterval returns the delay between status polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Upload.PollIntervalMS) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout for intake calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Intake.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleOptions fills intake settings into the sample configuration. Empty
// values keep the sample's defaults; a StatusURL also selects the polling
// strategy.
type SampleOptions struct {
	InitiateURL string
	StatusURL   string
}

// RenderSample returns the sample configuration with opts applied. The result
// is decoded and validated so a written sample always loads.
func RenderSample(opts SampleOptions) (string, error) {
	rendered := sampleConfig
	if value := strings.TrimSpace(opts.InitiateURL); value != "" {
		rendered = replaceSampleLine(rendered, "initiate_url = ", "initiate_url = "+strconv.Quote(value))
	}
	if value := strings.TrimSpace(opts.StatusURL); value != "" {
		rendered = replaceSampleLine(rendered, "# status_url = ", "status_url = "+strconv.Quote(value))
		rendered = replaceSampleLine(rendered, "strategy = ", `strategy = "polling" # "redirect" or "polling"`)
	}

	cfg := Default()
	if err := toml.Unmarshal([]byte(rendered), &cfg); err != nil {
		return "", fmt.Errorf("parse sample config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return rendered, nil
}

func replaceSampleLine(text, prefix, line string) string {
	lines := strings.Split(text, "\n")
	for i, current := range lines {
		if strings.HasPrefix(current, prefix) {
			lines[i] = line
			break
		}
	}
	return strings.Join(lines, "\n")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string, opts SampleOptions) error {
	rendered, err := RenderSample(opts)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
