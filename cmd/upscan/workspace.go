package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"upscan/internal/config"
	"upscan/internal/draft"
	"upscan/internal/form"
	"upscan/internal/intake"
	"upscan/internal/logging"
	"upscan/internal/upload"
)

// workspace is one visit to a ticket's form: the hidden fields loaded from
// the draft store and the coordinator operating on them.
type workspace struct {
	ticket      string
	fields      *form.Fields
	drafts      *draft.Store
	coordinator *upload.Coordinator
	observer    *cliObserver
	logger      *slog.Logger
}

func (c *commandContext) openWorkspace(ctx context.Context, ticket string) (*workspace, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, c.logger())

	ws := &workspace{
		ticket:   ticket,
		fields:   form.NewFields(),
		observer: &cliObserver{},
		logger:   logger,
	}
	if cfg.Draft.Enabled {
		drafts, err := draft.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open drafts: %w", err)
		}
		ws.drafts = drafts
		fields, err := drafts.Load(ctx, ticket)
		if err != nil {
			_ = drafts.Close()
			return nil, fmt.Errorf("load draft: %w", err)
		}
		ws.fields = fields
	}

	fieldName := cfg.Form.AttachmentsField
	if cfg.Form.Mode == config.FormModeDelimited {
		fieldName = cfg.Form.ReferencesField
	}
	store, err := form.NewStore(cfg.Form.Mode, ws.fields, fieldName)
	if err != nil {
		ws.close()
		return nil, err
	}

	client := intake.NewHTTPClient(cfg.RequestTimeout())
	initiator := intake.NewInitiator(cfg.InitiateURLFor(ticket), client)
	submitter := intake.NewSubmitter(cfg.Intake.FileField, client)
	var status upload.StatusSource
	if cfg.Intake.StatusURL != "" {
		status = intake.NewStatusClient(cfg.Intake.StatusURL, client)
	}
	strategy, err := upload.NewStrategy(cfg, status, logger)
	if err != nil {
		ws.close()
		return nil, err
	}

	coordinator, err := upload.NewCoordinator(ctx, initiator, submitter, strategy, store, upload.Options{
		MaxFiles:   cfg.Upload.MaxFiles,
		OneAtATime: cfg.Upload.OneAtATime,
		Logger:     logger,
		Observer:   ws.observer,
	})
	if err != nil {
		ws.close()
		return nil, err
	}
	ws.coordinator = coordinator
	return ws, nil
}

func (w *workspace) save(ctx context.Context) error {
	if w.drafts == nil {
		return nil
	}
	if err := w.drafts.Save(ctx, w.ticket, w.fields); err != nil {
		logging.ErrorWithContext(w.logger, "draft save failed", "draft_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check draft.path permissions or disable the draft"),
		)
		return fmt.Errorf("save draft: %w", err)
	}
	w.logger.Debug("draft saved", logging.Int("fields", w.fields.Len()))
	return nil
}

func (w *workspace) close() {
	if w.coordinator != nil {
		w.coordinator.Close()
	}
	if w.drafts != nil {
		if err := w.drafts.Close(); err != nil {
			w.logger.Warn("close draft store failed", logging.Error(err))
		}
	}
}

type failedFile struct {
	FileName string
	Message  string
}

// cliObserver collects per-file failures; the coordinator only keeps the
// latest message.
type cliObserver struct {
	upload.NopObserver

	mu       sync.Mutex
	failures []failedFile
}

func (o *cliObserver) TaskChanged(task upload.Task) {
	if task.State.Status != upload.StatusFailed || task.State.Failure == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, failedFile{FileName: task.FileName, Message: task.State.Failure.Message})
}

func (o *cliObserver) Failures() []failedFile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]failedFile(nil), o.failures...)
}
