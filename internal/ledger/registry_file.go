package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileRegistry keeps one JSON file per registration.
type FileRegistry struct {
	dir string
	mu  sync.Mutex
}

func NewFileRegistry(dir string) (*FileRegistry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("registry dir is required")
	}
	if err := ensureDirDurable(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure registry dir: %w", err)
	}
	return &FileRegistry{dir: dir}, nil
}

func (f *FileRegistry) path(runID string) string {
	return filepath.Join(f.dir, runID+".json")
}

func (f *FileRegistry) Register(ctx context.Context, r Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid registration: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(f.path(r.RunID)); err == nil {
		return fmt.Errorf("run %s: %w", r.RunID, ErrAlreadyRegistered)
	}
	data, err := jsonMarshalStable(r)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	return WriteFileAtomic(f.path(r.RunID), data, 0o644)
}

func (f *FileRegistry) Lookup(ctx context.Context, runID string) (Registration, error) {
	if err := ctx.Err(); err != nil {
		return Registration{}, err
	}
	var r Registration
	if err := readJSONStrict(f.path(runID), &r); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Registration{}, fmt.Errorf("registration %s: %w", runID, ErrNotFound)
		}
		return Registration{}, err
	}
	return r, nil
}

func (f *FileRegistry) List(ctx context.Context) ([]Registration, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	out := make([]Registration, 0, len(ids))
	for _, id := range ids {
		r, err := f.Lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *FileRegistry) Close() error { return nil }
