package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSON_RoundTripAndNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	in := map[string]int{"a": 1, "b": 2}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string]int
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Fatalf("unexpected round trip: %v", out)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".capset-tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadJSON_ReportsParseErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	err := ReadJSON(path, &v)
	if err == nil || !strings.Contains(err.Error(), "parse JSON") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestExistsAndRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")

	ok, err := Exists(path)
	if err != nil || ok {
		t.Fatalf("expected missing file, got ok=%v err=%v", ok, err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if err := WriteBytes(path, []byte("x")); err != nil {
		t.Fatal(err)
	}
	ok, err = Exists(path)
	if err != nil || !ok {
		t.Fatalf("expected existing file, got ok=%v err=%v", ok, err)
	}
	if _, err := Exists(dir); err == nil {
		t.Fatalf("expected directory to be rejected")
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := Exists(path); ok {
		t.Fatalf("expected file to be gone")
	}
}
