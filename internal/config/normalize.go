package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeIntake()
	c.normalizeUpload()
	c.normalizeForm()
	if err := c.normalizeDraft(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeIntake() {
	if value, ok := os.LookupEnv("UPSCAN_INITIATE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Intake.InitiateURL = value
	}
	if c.Intake.StatusURL == "" {
		if value, ok := os.LookupEnv("UPSCAN_STATUS_URL"); ok {
			c.Intake.StatusURL = value
		}
	}
	c.Intake.InitiateURL = strings.TrimSpace(c.Intake.InitiateURL)
	c.Intake.StatusURL = strings.TrimSpace(c.Intake.StatusURL)
	c.Intake.FileField = strings.TrimSpace(c.Intake.FileField)
	if c.Intake.FileField == "" {
		c.Intake.FileField = defaultFileField
	}
	if c.Intake.RequestTimeout <= 0 {
		c.Intake.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeUpload() {
	c.Upload.Strategy = strings.ToLower(strings.TrimSpace(c.Upload.Strategy))
	if c.Upload.Strategy == "" {
		c.Upload.Strategy = defaultStrategy
	}
	if c.Upload.PollIntervalMS <= 0 {
		c.Upload.PollIntervalMS = defaultPollIntervalMS
	}
}

func (c *Config) normalizeForm() {
	c.Form.Mode = strings.ToLower(strings.TrimSpace(c.Form.Mode))
	if c.Form.Mode == "" {
		c.Form.Mode = defaultFormMode
	}
	c.Form.AttachmentsField = strings.TrimSpace(c.Form.AttachmentsField)
	if c.Form.AttachmentsField == "" {
		c.Form.AttachmentsField = defaultAttachmentsField
	}
	c.Form.ReferencesField = strings.TrimSpace(c.Form.ReferencesField)
	if c.Form.ReferencesField == "" {
		c.Form.ReferencesField = defaultReferencesField
	}
}

func (c *Config) normalizeDraft() error {
	var err error
	if strings.TrimSpace(c.Draft.Path) == "" {
		c.Draft.Path = defaultDraftPath
	}
	if c.Draft.Path, err = expandPath(c.Draft.Path); err != nil {
		return fmt.Errorf("draft.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	var err error
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
