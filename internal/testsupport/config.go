package testsupport

import (
	"path/filepath"
	"testing"

	"upscan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Intake.InitiateURL = "http://127.0.0.1:0/devhub-support/ticket/{ticket}/initiate-upscan"
	cfgVal.Intake.RequestTimeout = 5
	cfgVal.Upload.PollIntervalMS = 1
	cfgVal.Draft.Path = filepath.Join(base, "drafts.db")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return builder.cfg
}

// WithIntake points the initiation and status endpoints at a fake intake server.
func WithIntake(srv *IntakeServer) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Intake.InitiateURL = srv.InitiateURL()
		b.cfg.Intake.StatusURL = srv.StatusURL()
	}
}

// WithPolling switches the confirmation strategy to status polling.
func WithPolling(statusURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.Strategy = config.StrategyPolling
		if statusURL != "" {
			b.cfg.Intake.StatusURL = statusURL
		}
	}
}

// WithMaxFiles overrides the attachment cap.
func WithMaxFiles(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.MaxFiles = n
	}
}

// WithFormMode selects the hidden field layout.
func WithFormMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Form.Mode = mode
	}
}

// WithDraftDisabled turns off draft persistence.
func WithDraftDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Draft.Enabled = false
	}
}
