package wal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestWriteCreatesQueueDirAndFile(t *testing.T) {
	s := New(t.TempDir())

	path, err := s.Write("emails", []byte(`{"input":{"to":"a@b.com"}}`))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "emails" {
		t.Errorf("expected file under emails/, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

func TestWriteResolvesCollisionWithCounter(t *testing.T) {
	s := New(t.TempDir())

	// Force a collision by writing the same timestamp path twice directly.
	dir := filepath.Join(s.baseDir, "q")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	ts := time.Now().UnixMilli()
	collide := filepath.Join(dir, strconv.FormatInt(ts, 10)+".json")
	if err := os.WriteFile(collide, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := s.List("q")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 pre-seeded file, got %d", len(paths))
	}

	path, err := s.Write("q", []byte(`{}`))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if path == collide {
		t.Errorf("expected Write to avoid the existing file %s", collide)
	}
	paths, err = s.List("q")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 files after Write, got %d", len(paths))
	}
}

func TestReadAndDelete(t *testing.T) {
	s := New(t.TempDir())

	path, err := s.Write("q", []byte(`{"input":1}`))
	if err != nil {
		t.Fatal(err)
	}

	body, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(body) != `{"input":1}` {
		t.Errorf("unexpected body: %s", body)
	}

	if err := s.Delete(path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected file to be removed")
	}

	// Deleting an already-missing file is not an error: best-effort log.
	if err := s.Delete(path); err != nil {
		t.Errorf("Delete() of missing file should be a no-op, got %v", err)
	}
}

func TestListEmptyDirIsNotAnError(t *testing.T) {
	s := New(t.TempDir())

	paths, err := s.List("never-written")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if paths != nil {
		t.Errorf("expected nil, got %v", paths)
	}
}

func TestListOrdersOldestFirst(t *testing.T) {
	s := New(t.TempDir())

	dir := filepath.Join(s.baseDir, "q")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"300.json", "100.json", "200.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := s.List("q")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"100.json", "200.json", "300.json"}
	for i, p := range paths {
		if filepath.Base(p) != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], filepath.Base(p))
		}
	}
}

func TestWithAttemptedOnEnrichesObjectInput(t *testing.T) {
	body := []byte(`{"input":{"to":"a@b.com"},"tags":["x"]}`)

	out, err := WithAttemptedOn(body, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("WithAttemptedOn() error = %v", err)
	}

	var decoded struct {
		Input map[string]json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded.Input["attempted_on"]; !ok {
		t.Error("expected attempted_on field in input object")
	}
}

func TestWithAttemptedOnLeavesNonObjectInputAlone(t *testing.T) {
	body := []byte(`{"input":[1,2,3]}`)

	out, err := WithAttemptedOn(body, time.Now())
	if err != nil {
		t.Fatalf("WithAttemptedOn() error = %v", err)
	}
	if string(out) != string(body) {
		t.Errorf("expected array input untouched, got %s", out)
	}
}
