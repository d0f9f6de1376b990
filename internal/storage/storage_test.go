package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "ynabot/pkg/logx"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.KnownIDs) != 0 || !got.SavedAt.IsZero() {
		t.Fatalf("expected empty state, got %+v", got)
	}
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load should not fail on corrupt state: %v", err)
	}
	if len(got.KnownIDs) != 0 {
		t.Fatalf("expected empty state, got %+v", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	saved := State{KnownIDs: []string{"t2", "t1", "t3"}, SavedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	if err := st.Save(context.Background(), saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.KnownIDs) != 3 {
		t.Fatalf("KnownIDs = %v", got.KnownIDs)
	}
	// Snapshot is sorted on save.
	if got.KnownIDs[0] != "t1" || got.KnownIDs[2] != "t3" {
		t.Fatalf("KnownIDs not sorted: %v", got.KnownIDs)
	}
	if !got.SavedAt.Equal(saved.SavedAt) {
		t.Fatalf("SavedAt = %v, want %v", got.SavedAt, saved.SavedAt)
	}
}

func TestFileStoreSaveStampsTime(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	st, _ := Open(Config{Driver: "file", Path: path}, logx.Nop())
	defer st.Close()

	if err := st.Save(context.Background(), State{KnownIDs: []string{"a"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := st.Load(context.Background())
	if got.SavedAt.IsZero() {
		t.Fatal("SavedAt not stamped on save")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	got, err := st.Load(context.Background())
	if err != nil || len(got.KnownIDs) != 0 {
		t.Fatalf("fresh Load = %+v, %v", got, err)
	}

	saved := State{KnownIDs: []string{"t1", "t2"}, SavedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	if err := st.Save(context.Background(), saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Whole-set replacement on every save.
	saved2 := State{KnownIDs: []string{"t3"}}
	if err := st.Save(context.Background(), saved2); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err = st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.KnownIDs) != 1 || got.KnownIDs[0] != "t3" {
		t.Fatalf("KnownIDs = %v, want [t3]", got.KnownIDs)
	}
	if got.SavedAt.IsZero() {
		t.Fatal("SavedAt missing after save")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
