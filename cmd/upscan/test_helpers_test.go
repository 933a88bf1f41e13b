package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"upscan/internal/config"
	"upscan/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	intake     *testsupport.IntakeServer
	configPath string
	filesDir   string
}

func setupCLITestEnv(t *testing.T, polling bool, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("UPSCAN_INITIATE_URL", "")
	t.Setenv("UPSCAN_STATUS_URL", "")

	srv := testsupport.NewIntakeServer(t, polling)
	options := []testsupport.ConfigOption{testsupport.WithIntake(srv)}
	if polling {
		options = append(options, testsupport.WithPolling(""))
	}
	cfg := testsupport.NewConfig(t, append(options, opts...)...)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		intake:     srv,
		configPath: configPath,
		filesDir:   filepath.Join(base, "files"),
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) file(t *testing.T, name string) string {
	t.Helper()
	return testsupport.WriteFile(t, e.filesDir, name, 2048)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
