package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"upscan/internal/form"
	"upscan/internal/services"
)

const maxInitiateBody = 1 << 20

// Initiator requests fresh upload sessions from the collaborator endpoint.
type Initiator struct {
	endpoint string
	client   HTTPDoer
}

// NewInitiator constructs an initiator for endpoint.
func NewInitiator(endpoint string, client HTTPDoer) *Initiator {
	return &Initiator{
		endpoint: strings.TrimSpace(endpoint),
		client:   doerOrDefault(client),
	}
}

// Initiate fetches a new session. The response is
// {"reference": "...", "postTarget": "...", "formFields": {...}} and the
// order of formFields is preserved.
func (i *Initiator) Initiate(ctx context.Context) (Session, error) {
	if i == nil || i.endpoint == "" {
		return Session{}, services.Wrap(services.ErrConfiguration, "initiate", "", "initiation endpoint not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.endpoint, nil)
	if err != nil {
		return Session{}, services.Wrap(services.ErrConfiguration, "initiate", "build request", "", err)
	}
	req.Header.Set("Accept", "application/json")
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return Session{}, services.Wrap(services.ErrTransport, "initiate", "GET "+i.endpoint, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, services.Wrap(services.ErrTransport, "initiate", "GET "+i.endpoint, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInitiateBody))
	if err != nil {
		return Session{}, services.Wrap(services.ErrTransport, "initiate", "read response", "", err)
	}
	return parseSession(body, req.URL)
}

func parseSession(body []byte, base *url.URL) (Session, error) {
	if !gjson.ValidBytes(body) {
		return Session{}, services.Wrap(services.ErrProtocol, "initiate", "decode response", "invalid json", nil)
	}
	doc := gjson.ParseBytes(body)
	target := strings.TrimSpace(doc.Get("postTarget").String())
	if target == "" {
		return Session{}, services.Wrap(services.ErrProtocol, "initiate", "decode response", "postTarget missing", nil)
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return Session{}, services.Wrap(services.ErrProtocol, "initiate", "decode response", "postTarget invalid", err)
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}

	session := Session{
		Target:    parsed,
		Reference: doc.Get("reference").String(),
		SingleUse: true,
	}
	formFields := doc.Get("formFields")
	if formFields.Exists() && !formFields.IsObject() {
		return Session{}, services.Wrap(services.ErrProtocol, "initiate", "decode response", "formFields is not an object", nil)
	}
	formFields.ForEach(func(key, value gjson.Result) bool {
		session.Fields = append(session.Fields, form.Field{Name: key.String(), Value: value.String()})
		return true
	})
	return session, nil
}
