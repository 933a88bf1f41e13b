package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIntake(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateForm(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIntake() error {
	if c.Intake.InitiateURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/upscan/config.toml"
		}
		return fmt.Errorf("intake.initiate_url is required. Set UPSCAN_INITIATE_URL env var or edit %s (create with 'upscan config init')", defaultPath)
	}
	if err := validateHTTPURL("intake.initiate_url", c.Intake.InitiateURL); err != nil {
		return err
	}
	if c.Intake.StatusURL != "" {
		if err := validateHTTPURL("intake.status_url", c.Intake.StatusURL); err != nil {
			return err
		}
	}
	if c.Intake.RequestTimeout <= 0 {
		return errors.New("intake.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateUpload() error {
	switch c.Upload.Strategy {
	case StrategyRedirect:
	case StrategyPolling:
		if c.Intake.StatusURL == "" {
			return errors.New("intake.status_url must be set when upload.strategy is \"polling\"")
		}
		if !strings.Contains(c.Intake.StatusURL, "{reference}") {
			return errors.New("intake.status_url must contain a {reference} placeholder")
		}
	default:
		return fmt.Errorf("upload.strategy: unsupported value %q (want %q or %q)", c.Upload.Strategy, StrategyRedirect, StrategyPolling)
	}
	if c.Upload.MaxFiles <= 0 {
		return errors.New("upload.max_files must be positive")
	}
	if c.Upload.PollAttempts <= 0 {
		return errors.New("upload.poll_attempts must be positive")
	}
	return nil
}

func (c *Config) validateForm() error {
	switch c.Form.Mode {
	case FormModeIndexed, FormModeDelimited:
	default:
		return fmt.Errorf("form.mode: unsupported value %q (want %q or %q)", c.Form.Mode, FormModeIndexed, FormModeDelimited)
	}
	if strings.ContainsAny(c.Form.AttachmentsField, "[].") {
		return errors.New("form.attachments_field must not contain '[', ']' or '.'")
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	filled := strings.NewReplacer("{ticket}", "t", "{reference}", "r").Replace(raw)
	parsed, err := url.Parse(filled)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, raw)
	}
	return nil
}
