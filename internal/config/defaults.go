package config

const (
	StrategyRedirect = "redirect"
	StrategyPolling  = "polling"

	FormModeIndexed   = "indexed"
	FormModeDelimited = "delimited"
)

const (
	defaultInitiateURL      = "http://localhost:9000/devhub-support/ticket/{ticket}/initiate-upscan"
	defaultFileField        = "file"
	defaultRequestTimeout   = 30
	defaultStrategy         = StrategyRedirect
	defaultMaxFiles         = 5
	defaultPollIntervalMS   = 2000
	defaultPollAttempts     = 30
	defaultFormMode         = FormModeIndexed
	defaultAttachmentsField = "fileAttachments"
	defaultReferencesField  = "fileReferences"
	defaultDraftPath        = "~/.local/share/upscan/drafts.db"
	defaultLogDir           = "~/.local/share/upscan/logs"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Intake: Intake{
			InitiateURL:    defaultInitiateURL,
			FileField:      defaultFileField,
			RequestTimeout: defaultRequestTimeout,
		},
		Upload: Upload{
			Strategy:       defaultStrategy,
			MaxFiles:       defaultMaxFiles,
			PollIntervalMS: defaultPollIntervalMS,
			PollAttempts:   defaultPollAttempts,
		},
		Form: Form{
			Mode:             defaultFormMode,
			AttachmentsField: defaultAttachmentsField,
			ReferencesField:  defaultReferencesField,
		},
		Draft: Draft{
			Enabled: true,
			Path:    defaultDraftPath,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			Dir:           defaultLogDir,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
