package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	want := payload{Name: "docker", Count: 3}

	if err := SaveJSON(path, want); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}

	var got payload
	if err := LoadJSON(path, &got); err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestLoadJSON_Missing(t *testing.T) {
	var v map[string]any
	err := LoadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadJSON() error = %v, want os.ErrNotExist", err)
	}
}

func TestWriteFileAtomic_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.json")
	if err := WriteFileAtomic(path, []byte(`{"v":1}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"v":2}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"v":2}` {
		t.Errorf("content = %s, want {\"v\":2}", data)
	}

	// No temp litter left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}
