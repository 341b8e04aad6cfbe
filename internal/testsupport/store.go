package testsupport

import (
	"context"
	"testing"

	"facewatch/internal/config"
	"facewatch/internal/records"
)

// MustOpenStore opens the config's record store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg.Store.Path)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord stores a subject with default fields and the given photos.
func NewRecord(t testing.TB, store *records.Store, name string, photos ...[]byte) int64 {
	t.Helper()

	ctx := context.Background()
	id, err := store.AddRecord(ctx, records.NewRecord{Name: name})
	if err != nil {
		t.Fatalf("store.AddRecord: %v", err)
	}
	for _, data := range photos {
		if _, err := store.AddPhoto(ctx, id, data); err != nil {
			t.Fatalf("store.AddPhoto: %v", err)
		}
	}
	return id
}
