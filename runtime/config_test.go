package runtime

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ReaderSlots != DefaultReaderSlots {
		t.Fatalf("ReaderSlots = %d, want %d", cfg.ReaderSlots, DefaultReaderSlots)
	}
}

func TestLoadConfigOverridesReaderSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	if err := os.WriteFile(path, []byte("reader_slots: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReaderSlots != 8 {
		t.Fatalf("ReaderSlots = %d, want 8", cfg.ReaderSlots)
	}
}

func TestLoadConfigFillsUnsetReaderSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReaderSlots != DefaultReaderSlots {
		t.Fatalf("ReaderSlots = %d, want default %d", cfg.ReaderSlots, DefaultReaderSlots)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error reading a nonexistent config file")
	}
}
