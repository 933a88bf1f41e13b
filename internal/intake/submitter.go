package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"upscan/internal/services"
)

// DefaultFileField is the multipart field name carrying the file.
const DefaultFileField = "file"

// SubmitResult is the raw outcome of a submission. Location is resolved
// against the target; RequestURL is the URL of the final request, which only
// differs from the target when the transport followed redirects.
type SubmitResult struct {
	StatusCode int
	Location   *url.URL
	RequestURL *url.URL
}

// Submitter posts files to the intake service.
type Submitter struct {
	fileField string
	client    HTTPDoer
}

// NewSubmitter constructs a submitter writing the file under fileField.
func NewSubmitter(fileField string, client HTTPDoer) *Submitter {
	fileField = strings.TrimSpace(fileField)
	if fileField == "" {
		fileField = DefaultFileField
	}
	return &Submitter{fileField: fileField, client: doerOrDefault(client)}
}

// Submit posts the session fields in order followed by the file. Only
// failures to complete the exchange are returned as errors; status codes are
// left to the confirmation strategy.
func (s *Submitter) Submit(ctx context.Context, session Session, fileName string, content io.Reader) (SubmitResult, error) {
	if !session.Valid() {
		return SubmitResult{}, services.Wrap(services.ErrConfiguration, "submit", "", "session has no target", nil)
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, field := range session.Fields {
		if err := writer.WriteField(field.Name, field.Value); err != nil {
			return SubmitResult{}, fmt.Errorf("write field %q: %w", field.Name, err)
		}
	}
	part, err := writer.CreateFormFile(s.fileField, fileName)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create file part: %w", err)
	}
	if content != nil {
		if _, err := io.Copy(part, content); err != nil {
			return SubmitResult{}, fmt.Errorf("read %s: %w", fileName, err)
		}
	}
	if err := writer.Close(); err != nil {
		return SubmitResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	target := session.Target.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return SubmitResult{}, services.Wrap(services.ErrConfiguration, "submit", "build request", "", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return SubmitResult{}, services.Wrap(services.ErrTransport, "submit", "POST "+target, "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result := SubmitResult{StatusCode: resp.StatusCode, RequestURL: session.Target}
	if resp.Request != nil && resp.Request.URL != nil {
		result.RequestURL = resp.Request.URL
	}
	if location := resp.Header.Get("Location"); location != "" {
		parsed, err := url.Parse(location)
		if err != nil {
			return result, services.Wrap(services.ErrProtocol, "submit", "parse location", location, err)
		}
		result.Location = result.RequestURL.ResolveReference(parsed)
	}
	return result, nil
}
