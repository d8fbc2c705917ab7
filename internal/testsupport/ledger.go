package testsupport

import (
	"testing"

	"mediaprep/internal/config"
	"mediaprep/internal/ledger"
)

// MustOpenLedger opens the run ledger under the config's log directory and
// closes it when the test ends.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.Paths.LogDir)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
