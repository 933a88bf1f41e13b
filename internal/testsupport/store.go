package testsupport

import (
	"testing"

	"upscan/internal/config"
	"upscan/internal/draft"
)

// MustOpenDraft opens the configured draft store for tests and registers cleanup.
func MustOpenDraft(t testing.TB, cfg *config.Config) *draft.Store {
	t.Helper()

	store, err := draft.Open(cfg)
	if err != nil {
		t.Fatalf("draft.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
