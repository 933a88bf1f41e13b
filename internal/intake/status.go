package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"upscan/internal/services"
)

// UploadStatus is the scan state reported by the status endpoint.
type UploadStatus string

const (
	StatusProcessing           UploadStatus = "Processing"
	StatusUploadedSuccessfully UploadStatus = "UploadedSuccessfully"
	StatusFailed               UploadStatus = "Failed"
)

// StatusReport is one status endpoint response.
type StatusReport struct {
	Status    UploadStatus
	ErrorCode string
}

// StatusClient polls the status endpoint for a session reference.
type StatusClient struct {
	template string
	client   HTTPDoer
}

// NewStatusClient constructs a client for template, in which "{reference}"
// is replaced with the escaped session reference.
func NewStatusClient(template string, client HTTPDoer) *StatusClient {
	return &StatusClient{template: strings.TrimSpace(template), client: doerOrDefault(client)}
}

// URLFor returns the status URL for reference.
func (c *StatusClient) URLFor(reference string) string {
	return strings.ReplaceAll(c.template, "{reference}", url.PathEscape(reference))
}

// Status performs one poll. Transport failures and non-2xx responses are
// ErrTransport; an unparseable body or unknown status is ErrProtocol.
func (c *StatusClient) Status(ctx context.Context, reference string) (StatusReport, error) {
	if c == nil || c.template == "" {
		return StatusReport{}, services.Wrap(services.ErrConfiguration, "confirm", "", "status endpoint not configured", nil)
	}
	endpoint := c.URLFor(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusReport{}, services.Wrap(services.ErrConfiguration, "confirm", "build request", "", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return StatusReport{}, services.Wrap(services.ErrTransport, "confirm", "GET "+endpoint, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusReport{}, services.Wrap(services.ErrTransport, "confirm", "GET "+endpoint, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return StatusReport{}, services.Wrap(services.ErrTransport, "confirm", "read response", "", err)
	}
	return parseStatus(body)
}

func parseStatus(body []byte) (StatusReport, error) {
	if !gjson.ValidBytes(body) {
		return StatusReport{}, services.Wrap(services.ErrProtocol, "confirm", "decode response", "invalid json", nil)
	}
	doc := gjson.ParseBytes(body)
	report := StatusReport{
		Status:    UploadStatus(doc.Get("uploadStatus").String()),
		ErrorCode: doc.Get("errorCode").String(),
	}
	switch report.Status {
	case StatusProcessing, StatusUploadedSuccessfully, StatusFailed:
		return report, nil
	default:
		return StatusReport{}, services.Wrap(services.ErrProtocol, "confirm", "decode response", fmt.Sprintf("unknown uploadStatus %q", report.Status), nil)
	}
}
