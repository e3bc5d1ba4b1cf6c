package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fwdctl/internal/forward"
	"fwdctl/pkg/logging"
)

// FileName is the name of the definitions document inside the data directory.
const FileName = "port-forwards.json"

// StorageError reports a failure to read, parse or write the definitions file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// FileStore keeps forward definitions as a JSON array in a single file.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the location of the definitions file.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Load reads all definitions. A missing file yields an empty slice and no
// error; unreadable or malformed content yields a *StorageError.
func (s *FileStore) Load() ([]forward.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Debug("Store", "Definitions file %s does not exist, starting empty", path)
		return []forward.Definition{}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}

	var defs []forward.Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, &StorageError{Op: "parse", Path: path, Err: err}
	}
	if defs == nil {
		defs = []forward.Definition{}
	}

	seen := make(map[string]struct{}, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return nil, &StorageError{Op: "parse", Path: path, Err: fmt.Errorf("entry %d has no id", i)}
		}
		if d.RemotePort == "" {
			return nil, &StorageError{Op: "parse", Path: path, Err: fmt.Errorf("entry %s has no remotePort", d.ID)}
		}
		if _, dup := seen[d.ID]; dup {
			return nil, &StorageError{Op: "parse", Path: path, Err: fmt.Errorf("duplicate id %s", d.ID)}
		}
		seen[d.ID] = struct{}{}
	}

	logging.Debug("Store", "Loaded %d definitions from %s", len(defs), path)
	return defs, nil
}

// Save replaces the definitions file with defs. The write goes through a
// temporary file in the same directory so readers never see a partial
// document.
func (s *FileStore) Save(defs []forward.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return &StorageError{Op: "mkdir", Path: s.dir, Err: err}
	}

	if defs == nil {
		defs = []forward.Definition{}
	}
	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, FileName+".*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}

	logging.Debug("Store", "Saved %d definitions to %s", len(defs), path)
	return nil
}
