package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gravtree.json")

	rc := Default()
	rc.MaxExport = 64

	if err := Save(path, rc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	select {
	case got := <-w.Updates():
		if got.MaxExport != 64 {
			t.Fatalf("initial load: MaxExport = %d, want 64", got.MaxExport)
		}
	case err := <-w.Errors():
		t.Fatalf("initial load error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial load")
	}

	rc.MaxExport = 256
	if err := Save(path, rc); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	select {
	case got := <-w.Updates():
		if got.MaxExport != 256 {
			t.Fatalf("reload: MaxExport = %d, want 256", got.MaxExport)
		}
	case err := <-w.Errors():
		t.Fatalf("reload error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
