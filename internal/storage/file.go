package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/boshu2/recourse/internal/audit"
)

const (
	// DefaultBaseDir is the default storage directory.
	DefaultBaseDir = ".recourse"

	// AuditsDir holds one JSONL file per audit run.
	AuditsDir = "audits"

	// IndexDir holds the run index.
	IndexDir = "index"

	// IndexFile is the name of the run index file.
	IndexFile = "runs.jsonl"

	// SlugMaxLength is the maximum length for URL-safe slugs.
	SlugMaxLength = 50

	// SlugMinWordBoundary is the minimum length before trimming at word boundary.
	SlugMinWordBoundary = 30
)

// FileStorage implements Storage using the local filesystem. Each run is a
// JSONL file whose first line is the run header and whose remaining lines
// are records.
type FileStorage struct {
	// BaseDir is the root directory (e.g., .recourse).
	BaseDir string

	mu sync.Mutex
}

// FileStorageOption configures a FileStorage instance.
type FileStorageOption func(*FileStorage)

// WithBaseDir sets the base directory.
func WithBaseDir(dir string) FileStorageOption {
	return func(fs *FileStorage) {
		fs.BaseDir = dir
	}
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(opts ...FileStorageOption) *FileStorage {
	fs := &FileStorage{BaseDir: DefaultBaseDir}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Init creates the required directory structure.
func (fs *FileStorage) Init() error {
	dirs := []string{
		filepath.Join(fs.BaseDir, AuditsDir),
		filepath.Join(fs.BaseDir, IndexDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteRun writes the run file atomically and appends it to the index.
// Returns the path to the run file.
func (fs *FileStorage) WriteRun(run *Run, records []audit.Record) (string, error) {
	if run.ID == "" {
		return "", ErrRunIDRequired
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Filename: YYYY-MM-DD-{slug}-{runID[:8]}.jsonl
	shortID := run.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	name := fmt.Sprintf("%s-%s-%s.jsonl", run.CreatedAt.Format("2006-01-02"), generateSlug(run.Label), shortID)
	path := filepath.Join(fs.BaseDir, AuditsDir, name)

	if err := fs.atomicWrite(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		if err := enc.Encode(run); err != nil {
			return err
		}
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("write run %s: %w", run.ID, err)
	}

	seen, err := fs.indexed(run.ID)
	if err != nil {
		return "", fmt.Errorf("read index: %w", err)
	}
	if !seen {
		if err := fs.appendIndex(IndexEntry{Run: *run, Path: path}); err != nil {
			return "", fmt.Errorf("index run %s: %w", run.ID, err)
		}
	}
	return path, nil
}

// ListRuns returns all indexed runs, oldest first.
func (fs *FileStorage) ListRuns() ([]Run, error) {
	entries, err := fs.readIndex()
	if err != nil {
		return nil, err
	}
	runs := make([]Run, len(entries))
	for i, e := range entries {
		runs[i] = e.Run
	}
	sort.SliceStable(runs, func(a, b int) bool { return runs[a].CreatedAt.Before(runs[b].CreatedAt) })
	return runs, nil
}

// ReadRecords retrieves the records of a run by ID.
func (fs *FileStorage) ReadRecords(runID string) ([]audit.Record, error) {
	entries, err := fs.readIndex()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == runID {
			return fs.readRunFile(e.Path)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// Close releases any resources.
func (fs *FileStorage) Close() error {
	return nil // No resources to release for file storage
}

func (fs *FileStorage) readIndex() (entries []IndexEntry, err error) {
	f, err := os.Open(fs.GetIndexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e IndexEntry
		if json.Unmarshal(sc.Bytes(), &e) != nil || e.ID == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// readRunFile reads the records of a run file, skipping its header.
func (fs *FileStorage) readRunFile(path string) ([]audit.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only, errors non-critical
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, ErrEmptyRunFile
	}
	var records []audit.Record
	for scanner.Scan() {
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// atomicWrite streams write into a temp file beside path and renames it into
// place once synced. On failure the temp file is removed.
func (fs *FileStorage) atomicWrite(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()           //nolint:errcheck // already failing
			_ = os.Remove(tmp.Name()) //nolint:errcheck // already failing
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}

// appendIndex appends one entry to the index and syncs it.
func (fs *FileStorage) appendIndex(entry IndexEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal index entry: %w", err)
	}
	path := fs.GetIndexPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("append index: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("sync index: %w", err)
	}
	return f.Close()
}

// indexed reports whether runID already has an index entry.
func (fs *FileStorage) indexed(runID string) (bool, error) {
	entries, err := fs.readIndex()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ID == runID {
			return true, nil
		}
	}
	return false, nil
}

// generateSlug lowercases text, joins its ASCII alphanumeric words with
// hyphens and caps the result at SlugMaxLength, cutting at a hyphen when
// one falls past SlugMinWordBoundary.
func generateSlug(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	s := strings.Join(words, "-")
	if len(s) > SlugMaxLength {
		s = s[:SlugMaxLength]
		if i := strings.LastIndexByte(s, '-'); i > SlugMinWordBoundary {
			s = s[:i]
		}
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		return "audit"
	}
	return s
}

// GetBaseDir returns the configured base directory.
func (fs *FileStorage) GetBaseDir() string {
	return fs.BaseDir
}

// GetAuditsDir returns the full path to the audits directory.
func (fs *FileStorage) GetAuditsDir() string {
	return filepath.Join(fs.BaseDir, AuditsDir)
}

// GetIndexPath returns the full path to the index file.
func (fs *FileStorage) GetIndexPath() string {
	return filepath.Join(fs.BaseDir, IndexDir, IndexFile)
}
