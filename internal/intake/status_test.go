package intake_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"upscan/internal/intake"
	"upscan/internal/services"
)

func TestStatusParsesReport(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"reference":"ref 2","uploadStatus":"Failed","errorCode":"QUARANTINE"}`))
	}))
	defer srv.Close()

	client := intake.NewStatusClient(srv.URL+"/status/{reference}", srv.Client())
	report, err := client.Status(context.Background(), "ref 2")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if path != "/status/ref 2" {
		t.Fatalf("unexpected path %q", path)
	}
	if report.Status != intake.StatusFailed || report.ErrorCode != "QUARANTINE" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestStatusClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		marker error
	}{
		{name: "bad gateway", status: http.StatusBadGateway, body: ``, marker: services.ErrTransport},
		{name: "garbage", status: http.StatusOK, body: `not json`, marker: services.ErrProtocol},
		{name: "unknown status", status: http.StatusOK, body: `{"uploadStatus":"Scanning"}`, marker: services.ErrProtocol},
		{name: "missing status", status: http.StatusOK, body: `{}`, marker: services.ErrProtocol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := intake.NewStatusClient(srv.URL+"/{reference}", srv.Client()).Status(context.Background(), "r")
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
		})
	}
}
