// Package wal is the contingency log of spec component E: before the HTTP
// adapter calls create_job, it writes the raw request to disk so a job that
// actually reached Redis is not silently lost if the response never makes it
// back to the client; the record is deleted once create_job confirms
// success. Orphan files are re-attempt candidates.
package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store writes, lists, reads, and deletes contingency records under
// <baseDir>/queues/<queue_name>/<timestamp_ms>.json.
type Store struct {
	baseDir string
}

// New builds a Store rooted at baseDir/queues. Callers typically derive
// baseDir from the running executable's directory (ExecutableDir).
func New(baseDir string) *Store {
	return &Store{baseDir: filepath.Join(baseDir, "queues")}
}

// ExecutableDir returns the directory containing the running binary, used
// as the default WAL root per spec.md §4.E.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	return filepath.Dir(exe), nil
}

// Record is one on-disk contingency file.
type Record struct {
	Path string
	Body []byte
}

// Write durably stores body under the queue's directory, timestamped to the
// millisecond and collision-resolved by an appended counter. Returns the
// full path so the caller can Delete it on success.
func (s *Store) Write(queue string, body []byte) (string, error) {
	dir := filepath.Join(s.baseDir, queue)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create wal dir %s: %w", dir, err)
	}

	ts := time.Now().UnixMilli()
	path := filepath.Join(dir, fmt.Sprintf("%d.json", ts))
	for counter := 1; fileExists(path); counter++ {
		path = filepath.Join(dir, fmt.Sprintf("%d-%d.json", ts, counter))
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write wal file %s: %w", path, err)
	}
	return path, nil
}

// Delete removes a contingency file once the engine confirms the job it
// describes was created. A missing file is not an error: the log is
// best-effort, per spec.md §4.E.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete wal file %s: %w", path, err)
	}
	return nil
}

// Read loads one contingency file's raw bytes.
func (s *Store) Read(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wal file %s: %w", path, err)
	}
	return body, nil
}

// List returns every pending contingency file for a queue, oldest first.
// An unreadable or missing directory yields an empty list rather than an
// error, since the core must tolerate a lost WAL directory.
func (s *Store) List(queue string) ([]string, error) {
	dir := filepath.Join(s.baseDir, queue)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list wal dir %s: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WithAttemptedOn enriches a raw request body with an attempted_on field,
// inserted into the input object only when input is itself a JSON object —
// an array or scalar input is left untouched, per spec.md §4.E.
func WithAttemptedOn(body []byte, attemptedOn time.Time) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse wal record: %w", err)
	}

	inputRaw, ok := raw["input"]
	if !ok {
		return body, nil
	}

	var inputObj map[string]json.RawMessage
	if err := json.Unmarshal(inputRaw, &inputObj); err != nil {
		// input isn't a JSON object; leave it alone.
		return body, nil
	}

	stamped, err := json.Marshal(attemptedOn.UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal attempted_on: %w", err)
	}
	inputObj["attempted_on"] = stamped

	mergedInput, err := json.Marshal(inputObj)
	if err != nil {
		return nil, fmt.Errorf("marshal enriched input: %w", err)
	}
	raw["input"] = mergedInput

	return json.Marshal(raw)
}
