// Package ledger persists runs and pre-registers their commitments.
//
// A run directory holds three files, all written atomically and durably
// (temp file, fsync, rename, directory fsync):
//
//	<dir>/runs/<run-id>/manifest.json
//	<dir>/runs/<run-id>/audit.log
//	<dir>/runs/<run-id>/commitment.json   (committed runs only)
//
// A crash can therefore leave a run directory without a manifest, but never a
// truncated log under a manifest that claims it.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/merkle"
)

// ErrNotFound is returned when a run or registration does not exist.
var ErrNotFound = errors.New("not found")

// Store provides persistent storage for runs under <baseDir>/runs.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	return &Store{baseDir: baseDir}, nil
}

// Dir returns the base directory.
func (s *Store) Dir() string { return s.baseDir }

func (s *Store) runsRootDir() string {
	return filepath.Join(s.baseDir, "runs")
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.runsRootDir(), runID)
}

func (s *Store) manifestPath(runID string) string {
	return filepath.Join(s.runDir(runID), "manifest.json")
}

// LogPath returns the path of a run's audit log.
func (s *Store) LogPath(runID string) string {
	return filepath.Join(s.runDir(runID), "audit.log")
}

func (s *Store) commitmentPath(runID string) string {
	return filepath.Join(s.runDir(runID), "commitment.json")
}

// ListRunIDs returns the IDs of all runs with a manifest.
//
// Run IDs are time-ordered UUIDs, so the lexicographic order is creation order.
func (s *Store) ListRunIDs() ([]string, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	entries, err := os.ReadDir(s.runsRootDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.manifestPath(e.Name())); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveRun persists the log, the commitment (if any) and then the manifest.
//
// The manifest is written last and its digest must match log, so a manifest on
// disk always describes a complete log.
func (s *Store) SaveRun(m Manifest, log []byte) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if got := audit.Digest(log); got != m.Digest {
		return fmt.Errorf("log digest %s does not match manifest digest %s", got, m.Digest)
	}
	if err := ensureDirDurable(s.runDir(m.RunID), 0o755); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	if err := WriteFileAtomic(s.LogPath(m.RunID), log, 0o644); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if m.Commitment != nil {
		data, err := jsonMarshalStable(m.Commitment)
		if err != nil {
			return fmt.Errorf("marshal commitment: %w", err)
		}
		if err := WriteFileAtomic(s.commitmentPath(m.RunID), data, 0o644); err != nil {
			return fmt.Errorf("write commitment: %w", err)
		}
	}
	data, err := jsonMarshalStable(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := WriteFileAtomic(s.manifestPath(m.RunID), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *Store) LoadManifest(runID string) (Manifest, error) {
	var m Manifest
	if strings.TrimSpace(runID) == "" {
		return Manifest{}, errors.New("runID is required")
	}
	if err := readJSONStrict(s.manifestPath(runID), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return Manifest{}, err
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest on disk: %w", err)
	}
	return m, nil
}

// LoadLog reads a run's audit log and checks it against the manifest digest.
func (s *Store) LoadLog(runID string) ([]byte, Manifest, error) {
	m, err := s.LoadManifest(runID)
	if err != nil {
		return nil, Manifest{}, err
	}
	log, err := os.ReadFile(s.LogPath(runID))
	if err != nil {
		return nil, Manifest{}, fmt.Errorf("read log: %w", err)
	}
	if got := audit.Digest(log); got != m.Digest {
		return nil, Manifest{}, fmt.Errorf("log on disk has digest %s, manifest says %s", got, m.Digest)
	}
	return log, m, nil
}

// LoadCommitment reads a run's commitment file.
func (s *Store) LoadCommitment(runID string) (merkle.Commitment, error) {
	var c merkle.Commitment
	if err := readJSONStrict(s.commitmentPath(runID), &c); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return merkle.Commitment{}, fmt.Errorf("commitment of run %s: %w", runID, ErrNotFound)
		}
		return merkle.Commitment{}, err
	}
	return c, nil
}

// jsonMarshalStable renders v as indented JSON with a trailing newline. Field
// order follows the struct declaration, so equal values give equal bytes.
func jsonMarshalStable(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// readJSONStrict decodes exactly one JSON value from path into dst. Unknown
// fields and trailing content are errors. A missing file keeps
// os.ErrNotExist in the chain.
func readJSONStrict(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("decode %s: trailing content after the JSON value", filepath.Base(path))
	}
	return nil
}

// ensureDirDurable creates dir and syncs it and its parent, so the new entry
// survives a crash before the first run file lands in it.
func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	for _, d := range []string{dir, filepath.Dir(dir)} {
		if err := fsyncDir(d); err != nil {
			return err
		}
		if d == filepath.Dir(d) {
			break
		}
	}
	return nil
}

// WriteFileAtomic writes data to path through a synced temp file and a rename.
// On any failure path is left untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	renamed = true
	return fsyncDir(dir)
}

// fsyncDir flushes the directory entry table of dir.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// AtomicFile is an io.Writer that buffers everything and publishes it to Path
// in one atomic write. It is the file sink for the audit recorder: a failed
// run never leaves a partial log behind.
type AtomicFile struct {
	Path string
	Perm os.FileMode
}

func (f AtomicFile) Write(p []byte) (int, error) {
	perm := f.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := WriteFileAtomic(f.Path, p, perm); err != nil {
		return 0, err
	}
	return len(p), nil
}
