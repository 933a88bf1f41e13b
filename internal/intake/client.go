package intake

import (
	"net/http"
	"time"
)

// HTTPDoer describes the HTTP client used by the intake clients.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client that reports redirects instead of following
// them, so the outcome carried in a Location header stays observable.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func doerOrDefault(client HTTPDoer) HTTPDoer {
	if client == nil {
		return NewHTTPClient(30 * time.Second)
	}
	return client
}
