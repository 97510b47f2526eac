package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "file.txt")

	if err := WriteFileAtomic(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}

	// Overwrite replaces content.
	if err := WriteFileAtomic(path, []byte("world"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "world" {
		t.Errorf("content after overwrite = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.json")

	type record struct {
		TaskID string `json:"task_id"`
		Commit string `json:"commit"`
	}
	in := record{TaskID: "T1", Commit: "abc123"}

	if err := WriteJSONAtomic(path, in, 0o644); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}

	var out record
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestReadJSONMissing(t *testing.T) {
	var v map[string]any
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	if !os.IsNotExist(err) {
		t.Errorf("err = %v, want IsNotExist", err)
	}
}
