package identity

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewGeneratesNicknameFallback(t *testing.T) {
	id := New("", "/tmp/dest", "0.0.0.0:7646")
	st := id.Snapshot()

	if st.Nickname != st.ID {
		t.Fatalf("expected nickname to default to ID, got nickname=%q id=%q", st.Nickname, st.ID)
	}
	if st.ID == "" {
		t.Fatal("expected a generated ID")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("APPDATA", home)

	dir := t.TempDir()
	id := New("bob", dir, "127.0.0.1:7646")
	id.path = configPath()

	if _, err := id.AddShare("music", []string{dir}); err != nil {
		t.Fatalf("AddShare: %v", err)
	}
	if err := id.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := id.Snapshot()
	got := loaded.Snapshot()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAddShareIdempotent(t *testing.T) {
	dir := t.TempDir()
	id := New("bob", dir, "127.0.0.1:7646")

	if _, err := id.AddShare("music", []string{dir}); err != nil {
		t.Fatalf("AddShare: %v", err)
	}
	if len(id.Snapshot().Shares) != 1 {
		t.Fatalf("expected 1 share, got %d", len(id.Snapshot().Shares))
	}

	second, err := id.AddShare("music", []string{dir})
	if err != nil {
		t.Fatalf("AddShare (again): %v", err)
	}
	if second.Name != "" || len(second.Paths) != 0 {
		t.Fatalf("expected no-op zero value on duplicate AddShare, got %+v", second)
	}
	if len(id.Snapshot().Shares) != 1 {
		t.Fatalf("expected still 1 share after duplicate add, got %d", len(id.Snapshot().Shares))
	}
}

func TestAddShareDropsNonexistentPaths(t *testing.T) {
	dir := t.TempDir()
	id := New("bob", dir, "127.0.0.1:7646")

	share, err := id.AddShare("mixed", []string{dir, filepath.Join(dir, "does-not-exist")})
	if err != nil {
		t.Fatalf("AddShare: %v", err)
	}
	if len(share.Paths) != 1 {
		t.Fatalf("expected only the real directory to survive, got %v", share.Paths)
	}
}

func TestRemoveShare(t *testing.T) {
	dir := t.TempDir()
	id := New("bob", dir, "127.0.0.1:7646")

	if _, err := id.AddShare("music", []string{dir}); err != nil {
		t.Fatalf("AddShare: %v", err)
	}
	id.RemoveShare("music")

	if len(id.Snapshot().Shares) != 0 {
		t.Fatalf("expected share removed, got %v", id.Snapshot().Shares)
	}

	// Removing an already-absent share is a no-op, not an error.
	id.RemoveShare("music")
}

func TestAddShareRejectsOversizedAnnouncePayload(t *testing.T) {
	dir := t.TempDir()
	id := New("bob", dir, "127.0.0.1:7646")

	longName := make([]byte, maxAnnouncePayload)
	for i := range longName {
		longName[i] = 'a'
	}

	_, err := id.AddShare(string(longName), []string{dir})
	if err != ErrShareSetTooLarge {
		t.Fatalf("expected ErrShareSetTooLarge, got %v", err)
	}
	if len(id.Snapshot().Shares) != 0 {
		t.Fatal("expected identity to remain unmodified after a rejected AddShare")
	}
}
