package upload

import (
	"errors"
	"strings"

	"upscan/internal/services"
)

// FailureKind classifies why a task failed.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureIntake    FailureKind = "intake"
	FailureProtocol  FailureKind = "protocol"
	FailureTimeout   FailureKind = "timeout"
)

// Protocol failure codes.
const (
	CodeMissingOutcome   = "missing-outcome"
	CodeAmbiguousOutcome = "ambiguous-outcome"
	CodeUnparseable      = "unparseable"
)

const (
	messageTransport   = "File upload failed: the upload service could not be reached"
	messageMissing     = "File upload failed: No file key or error code received"
	messageUnparseable = "File upload failed: Unable to process upload response"
	messageTimeout     = "File upload failed: the upload service did not confirm the file in time"
	messageUnknownCode = "The selected file could not be uploaded. Try again"
)

var intakeMessages = map[string]string{
	"EntityTooLarge":  "The selected file must be smaller than 10MB",
	"EntityTooSmall":  "The selected file is empty",
	"InvalidArgument": "Select a file to upload",
	"QUARANTINE":      "The selected file contains a virus",
	"REJECTED":        "The selected file must be a PDF, image, text or Office document",
}

// MessageFor returns the user-facing message for a failure kind and code.
func MessageFor(kind FailureKind, code string) string {
	switch kind {
	case FailureIntake:
		if msg, ok := intakeMessages[strings.TrimSpace(code)]; ok {
			return msg
		}
		return messageUnknownCode
	case FailureProtocol:
		if code == CodeMissingOutcome {
			return messageMissing
		}
		return messageUnparseable
	case FailureTimeout:
		return messageTimeout
	default:
		return messageTransport
	}
}

// Failure is the reason carried by a failed task.
type Failure struct {
	Kind    FailureKind
	Code    string
	Message string
	Err     error
}

func newFailure(kind FailureKind, code string, err error) *Failure {
	return &Failure{Kind: kind, Code: code, Message: MessageFor(kind, code), Err: err}
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	if f.Code != "" {
		b.WriteString(" (")
		b.WriteString(f.Code)
		b.WriteString(")")
	}
	b.WriteString(": ")
	if f.Err != nil {
		b.WriteString(f.Err.Error())
	} else {
		b.WriteString(f.Message)
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure converts any error returned while uploading into a Failure.
func AsFailure(err error) Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return *failure
	}
	switch services.Marker(err) {
	case services.ErrIntake:
		return *newFailure(FailureIntake, "UNKNOWN", err)
	case services.ErrTimeout:
		return *newFailure(FailureTimeout, "", err)
	case services.ErrProtocol:
		return *newFailure(FailureProtocol, CodeUnparseable, err)
	default:
		return *newFailure(FailureTransport, "", err)
	}
}

func (f Failure) pointer() *Failure {
	return &f
}
