package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// fileData is the on-disk layout of a FileStore.
type fileData struct {
	Profiles map[string]map[string]string `json:"profiles"` // key = profile
}

// FileStore keeps tokens in a JSON file readable only by the current user.
// Writes merge with the entries of other profiles and are serialized across
// processes with a lock file.
type FileStore struct {
	path    string
	profile string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore for profile backed by the file at path.
// The file is created on first write.
func NewFileStore(path, profile string) *FileStore {
	return &FileStore{path: path, profile: profile}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, error) {
	data, err := s.read()
	if err != nil {
		return "", &StoreError{Op: "get", Key: key, Err: err}
	}
	value, ok := data.Profiles[s.profile][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *FileStore) Set(key, value string) error {
	err := s.update(func(entries map[string]string) {
		entries[key] = value
	})
	if err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *FileStore) Remove(key string) error {
	err := s.update(func(entries map[string]string) {
		delete(entries, key)
	})
	if err != nil {
		return &StoreError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// read loads the whole file. A missing file reads as empty.
func (s *FileStore) read() (*fileData, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileData{}, nil
	}
	if err != nil {
		return nil, err
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &data, nil
}

// update applies fn to this profile's entries under the file lock and writes
// the result back atomically.
func (s *FileStore) update(fn func(entries map[string]string)) error {
	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	data, err := s.read()
	if err != nil {
		// A corrupt file is replaced rather than blocking every later write.
		data = &fileData{}
	}
	if data.Profiles == nil {
		data.Profiles = make(map[string]map[string]string)
	}
	entries := data.Profiles[s.profile]
	if entries == nil {
		entries = make(map[string]string)
	}
	fn(entries)
	if len(entries) == 0 {
		delete(data.Profiles, s.profile)
	} else {
		data.Profiles[s.profile] = entries
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
