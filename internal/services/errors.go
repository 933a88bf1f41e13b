package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport marks network or HTTP failures reaching the intake,
	// initiation, or status endpoints.
	ErrTransport = errors.New("transport error")
	// ErrIntake marks an explicit error code reported by the intake service.
	ErrIntake = errors.New("intake error")
	// ErrProtocol marks a missing, ambiguous, or unparseable outcome.
	ErrProtocol = errors.New("protocol error")
	// ErrTimeout marks an exhausted confirmation budget.
	ErrTimeout       = errors.New("timeout")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later failure classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failure may be retried within a confirmation
// budget. Only transport failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Marker returns the sentinel that classifies err, or nil when err carries none.
func Marker(err error) error {
	for _, marker := range []error{ErrIntake, ErrTimeout, ErrProtocol, ErrTransport, ErrConfiguration} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
