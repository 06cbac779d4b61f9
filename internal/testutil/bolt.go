package testutil

import (
	"path/filepath"
	"testing"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/storage/bolt"
)

// NewBoltStore opens a bolt store in a per-test temp directory and closes it
// on cleanup.
func NewBoltStore(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
