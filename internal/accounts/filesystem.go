package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FileStore persists records as JSON arrays, one folder per category and one
// file per worker inside each folder.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates the category folders under baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, errors.New("accounts: base directory is required")
	}
	for _, c := range Categories {
		if err := os.MkdirAll(filepath.Join(baseDir, string(c)), 0o750); err != nil {
			return nil, fmt.Errorf("accounts: create %s folder: %w", c, err)
		}
	}
	return &FileStore{baseDir: baseDir}, nil
}

// BaseDir returns the root folder.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// Record appends the account to the worker's file in every category it
// belongs to. Appends rewrite only the closing bracket of the array.
func (s *FileStore) Record(ctx context.Context, account Account) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("accounts: record canceled: %w", err)
	}
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("accounts: encode: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := fmt.Sprintf("accounts_worker_%d.json", account.Worker)
	for _, c := range Categories {
		if !account.In(c) {
			continue
		}
		path := filepath.Join(s.baseDir, string(c), name)
		err = appendFile(path, data)
		if errors.Is(err, errNotAppendable) {
			err = rewriteFile(path, account)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns up to limit records, taking at most PerFileLimit from each file.
func (s *FileStore) List(ctx context.Context, category Category, limit int) ([]Account, error) {
	return s.collect(ctx, category, PerFileLimit, normalizeLimit(limit))
}

// All returns every record in the category folder.
func (s *FileStore) All(ctx context.Context, category Category) ([]Account, error) {
	return s.collect(ctx, category, 0, 0)
}

func (s *FileStore) collect(ctx context.Context, category Category, perFile, limit int) ([]Account, error) {
	if _, ok := ParseCategory(string(category)); !ok {
		return nil, ErrUnknownCategory
	}
	dir := filepath.Join(s.baseDir, string(category))
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Account{}, nil
		}
		return nil, fmt.Errorf("accounts: read %s folder: %w", category, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	out := make([]Account, 0)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("accounts: list canceled: %w", err)
		}
		records, err := readFile(filepath.Join(dir, name))
		if err != nil {
			// Unreadable files are skipped so one bad file does not hide the rest.
			continue
		}
		if perFile > 0 && len(records) > perFile {
			records = records[:perFile]
		}
		out = append(out, records...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

var (
	arrayTail        = []byte("\n]")
	errNotAppendable = errors.New("accounts: file does not end with an array tail")
)

// appendFile adds one encoded record to the JSON array at path in place.
func appendFile(path string, record []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) //nolint:gosec // path is built from a fixed folder layout
	if err != nil {
		return fmt.Errorf("accounts: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close() //nolint:errcheck // write errors are checked below
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("accounts: stat %s: %w", filepath.Base(path), err)
	}
	size := info.Size()
	if size == 0 {
		return writeAt(f, path, slices.Concat([]byte("[\n"), record, arrayTail), 0)
	}
	tailAt := size - int64(len(arrayTail))
	if tailAt < 0 {
		return errNotAppendable
	}
	tail := make([]byte, len(arrayTail))
	if _, err := f.ReadAt(tail, tailAt); err != nil {
		return fmt.Errorf("accounts: read %s: %w", filepath.Base(path), err)
	}
	if !bytes.Equal(tail, arrayTail) {
		return errNotAppendable
	}
	return writeAt(f, path, slices.Concat([]byte(",\n"), record, arrayTail), tailAt)
}

func writeAt(f *os.File, path string, data []byte, off int64) error {
	if _, err := f.WriteAt(data, off); err != nil {
		return fmt.Errorf("accounts: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// rewriteFile decodes the existing array, if any, and writes it back with
// account added.
func rewriteFile(path string, account Account) error {
	existing, err := readFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeFile(path, append(existing, account))
}

func readFile(path string) ([]Account, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from a fixed folder layout
	if err != nil {
		return nil, fmt.Errorf("accounts: read %s: %w", filepath.Base(path), err)
	}
	var records []Account
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("accounts: decode %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

func writeFile(path string, records []Account) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("accounts: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("accounts: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("accounts: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
