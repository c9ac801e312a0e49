package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type fileEntry struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// FileJar keeps entries in a single JSON file.
type FileJar struct {
	filePath string
	entries  map[string]fileEntry
	now      func() time.Time
	mu       sync.RWMutex
}

// NewFileJar opens the jar at filePath. A missing file is an empty jar; it is
// created on the first write.
func NewFileJar(filePath string) (*FileJar, error) {
	j := &FileJar{
		filePath: filePath,
		entries:  map[string]fileEntry{},
		now:      time.Now,
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *FileJar) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read jar: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	entries := map[string]fileEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode jar %s: %w", j.filePath, err)
	}
	j.entries = entries
	return nil
}

// save writes all entries. Callers hold the write lock.
func (j *FileJar) save() error {
	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(j.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create jar dir: %w", err)
		}
	}
	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write jar: %w", err)
	}
	return os.Rename(tmp, j.filePath)
}

func (j *FileJar) Get(_ context.Context, name string) ([]byte, bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	e, ok := j.entries[name]
	if !ok || !e.Expires.After(j.now()) {
		return nil, false, nil
	}
	return []byte(e.Value), true, nil
}

func (j *FileJar) Set(_ context.Context, name string, value []byte, expires time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[name] = fileEntry{Value: string(value), Expires: expires.UTC()}
	return j.save()
}

func (j *FileJar) Delete(_ context.Context, name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.entries[name]; !ok {
		return nil
	}
	delete(j.entries, name)
	return j.save()
}

func (j *FileJar) Sweep(_ context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	removed := 0
	for name, e := range j.entries {
		if !e.Expires.After(now) {
			delete(j.entries, name)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, j.save()
}

func (j *FileJar) Close() error { return nil }
