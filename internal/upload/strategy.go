package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"upscan/internal/config"
	"upscan/internal/intake"
	"upscan/internal/logging"
	"upscan/internal/services"
)

// Strategy turns a submission result into a confirmed reference. accepted is
// invoked when the intake service took the file for deferred scanning.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, session intake.Session, result intake.SubmitResult, accepted func()) (string, error)
}

// StatusSource reads the scan outcome for a session reference.
type StatusSource interface {
	Status(ctx context.Context, reference string) (intake.StatusReport, error)
}

// RedirectStrategy reads the outcome from the key or errorCode query
// parameter of the redirect that answers the submission.
type RedirectStrategy struct{}

func (RedirectStrategy) Name() string { return config.StrategyRedirect }

func (RedirectStrategy) Resolve(_ context.Context, _ intake.Session, result intake.SubmitResult, _ func()) (string, error) {
	if result.StatusCode >= http.StatusBadRequest {
		return "", newFailure(FailureTransport, "", services.Wrap(services.ErrTransport, "submit", "", fmt.Sprintf("intake returned %d", result.StatusCode), nil))
	}
	source := result.RequestURL
	if isRedirect(result.StatusCode) && result.Location != nil {
		source = result.Location
	}
	return outcomeFromURL(source)
}

func outcomeFromURL(source *url.URL) (string, error) {
	if source == nil {
		return "", newFailure(FailureProtocol, CodeMissingOutcome, nil)
	}
	query := source.Query()
	key := strings.TrimSpace(query.Get("key"))
	code := strings.TrimSpace(query.Get("errorCode"))
	switch {
	case key != "" && code != "":
		return "", newFailure(FailureProtocol, CodeAmbiguousOutcome, fmt.Errorf("both key and errorCode in %s", source.Redacted()))
	case code != "":
		return "", newFailure(FailureIntake, code, services.Wrap(services.ErrIntake, "submit", "", code, nil))
	case key != "":
		return key, nil
	default:
		return "", newFailure(FailureProtocol, CodeMissingOutcome, nil)
	}
}

func isRedirect(status int) bool {
	return status >= http.StatusMultipleChoices && status < http.StatusBadRequest
}

// Sleeper waits between polls and returns early when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollingStrategy polls the status endpoint after the submission was accepted.
// The budget is counted in attempts, not wall-clock time.
type PollingStrategy struct {
	status   StatusSource
	interval time.Duration
	attempts int
	sleep    Sleeper
	logger   *slog.Logger
}

// PollingOption customizes a PollingStrategy.
type PollingOption func(*PollingStrategy)

// WithSleeper replaces the wait between polls.
func WithSleeper(sleep Sleeper) PollingOption {
	return func(p *PollingStrategy) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithPollLogger attaches a logger for per-attempt diagnostics.
func WithPollLogger(logger *slog.Logger) PollingOption {
	return func(p *PollingStrategy) {
		p.logger = logging.NewComponentLogger(logger, "poller")
	}
}

// NewPollingStrategy constructs a poller issuing at most attempts polls, interval apart.
func NewPollingStrategy(status StatusSource, interval time.Duration, attempts int, opts ...PollingOption) *PollingStrategy {
	p := &PollingStrategy{
		status:   status,
		interval: interval,
		attempts: attempts,
		sleep:    sleepContext,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.attempts <= 0 {
		p.attempts = 1
	}
	return p
}

func (p *PollingStrategy) Name() string { return config.StrategyPolling }

func (p *PollingStrategy) Resolve(ctx context.Context, session intake.Session, result intake.SubmitResult, accepted func()) (string, error) {
	switch {
	case result.StatusCode >= http.StatusBadRequest:
		return "", newFailure(FailureTransport, "", services.Wrap(services.ErrTransport, "submit", "", fmt.Sprintf("intake returned %d", result.StatusCode), nil))
	case isRedirect(result.StatusCode), result.StatusCode == http.StatusOK, result.StatusCode == http.StatusAccepted:
	default:
		return "", newFailure(FailureProtocol, CodeUnparseable, fmt.Errorf("unexpected submission status %d", result.StatusCode))
	}
	if strings.TrimSpace(session.Reference) == "" {
		return "", newFailure(FailureProtocol, CodeUnparseable, errors.New("session has no reference to poll"))
	}
	if accepted != nil {
		accepted()
	}

	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := p.sleep(ctx, p.interval); err != nil {
			return "", err
		}
		report, err := p.status.Status(ctx, session.Reference)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			if services.Retryable(err) {
				p.logger.Debug("status poll failed",
					logging.Int("attempt", attempt),
					logging.String(logging.FieldReference, session.Reference),
					logging.Error(err),
				)
				continue
			}
			return "", AsFailure(err).pointer()
		}
		switch report.Status {
		case intake.StatusUploadedSuccessfully:
			return session.Reference, nil
		case intake.StatusFailed:
			code := strings.TrimSpace(report.ErrorCode)
			if code == "" {
				code = "UNKNOWN"
			}
			return "", newFailure(FailureIntake, code, services.Wrap(services.ErrIntake, "confirm", "", code, nil))
		default:
			p.logger.Debug("upload still processing",
				logging.Int("attempt", attempt),
				logging.String(logging.FieldReference, session.Reference),
			)
		}
	}
	p.logger.Debug("status polling exhausted",
		logging.String(logging.FieldReference, session.Reference),
		logging.Int("attempts", p.attempts),
		logging.Duration("waited", time.Duration(p.attempts)*p.interval),
	)
	return "", newFailure(FailureTimeout, "", services.Wrap(services.ErrTimeout, "confirm", "", fmt.Sprintf("no confirmation after %d polls", p.attempts), nil))
}

// NewStrategy selects the confirmation strategy configured in cfg.
func NewStrategy(cfg *config.Config, status StatusSource, logger *slog.Logger) (Strategy, error) {
	if cfg == nil {
		return RedirectStrategy{}, nil
	}
	switch cfg.Upload.Strategy {
	case config.StrategyRedirect:
		return RedirectStrategy{}, nil
	case config.StrategyPolling:
		if status == nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "", "polling strategy requires a status endpoint", nil)
		}
		return NewPollingStrategy(status, cfg.PollInterval(), cfg.Upload.PollAttempts, WithPollLogger(logger)), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "", "", fmt.Sprintf("unknown upload strategy %q", cfg.Upload.Strategy), nil)
	}
}
