package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultPath is where the provisioning flow writes the record.
const DefaultPath = "/var/lib/sprinkler/settings.json"

const (
	defaultAttempts   = 3
	defaultRetryDelay = 100 * time.Millisecond
)

// FileStore persists the record as a JSON file.
// Reads are retried a bounded number of times so a transient storage fault
// degrades to "no record" instead of blocking the caller.
type FileStore struct {
	path     string
	attempts int
	delay    time.Duration
}

// NewFileStore creates a store for path with the default retry policy.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:     path,
		attempts: defaultAttempts,
		delay:    defaultRetryDelay,
	}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decodes the record.
//
// A missing file returns ErrNoRecord at once. Other read errors are retried;
// once retries are exhausted, or ctx is done, the result is ErrNoRecord.
// Corrupt content also returns ErrNoRecord. In every error case the returned
// record is Defaults().
func (s *FileStore) Load(ctx context.Context) (Record, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		data, err := os.ReadFile(s.path)
		if err == nil {
			return Decode(data)
		}
		if errors.Is(err, fs.ErrNotExist) {
			return Defaults(), fmt.Errorf("%w: %s does not exist", ErrNoRecord, s.path)
		}
		lastErr = err

		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Defaults(), fmt.Errorf("%w: %v", ErrNoRecord, ctx.Err())
		case <-time.After(s.delay):
		}
	}
	return Defaults(), fmt.Errorf("%w: read %s after %d attempts: %v", ErrNoRecord, s.path, s.attempts, lastErr)
}

// Resolve loads the record and validates it. Any error means provisioning
// must run; it wraps either ErrNoRecord or ErrInvalid.
func (s *FileStore) Resolve(ctx context.Context) (ConnectionSettings, error) {
	r, err := s.Load(ctx)
	if err != nil {
		return ConnectionSettings{}, err
	}
	return Validate(r)
}

// Save writes the record atomically with owner-only permissions.
// Only records that pass Validate are written.
func (s *FileStore) Save(r Record) error {
	if _, err := Validate(r); err != nil {
		return err
	}
	data, err := Encode(r)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename settings: %w", err)
	}
	return nil
}
