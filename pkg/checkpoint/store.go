package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/browserpilot/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("checkpoint")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

// FileName is the checkpoint file name inside a session directory.
const FileName = "checkpoint.json"

// DefaultPath returns the checkpoint location for a session under dir.
func DefaultPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID, FileName)
}

// Store persists checkpoints. Load never fails: anything that cannot be
// used as a checkpoint is reported as nil.
type Store interface {
	Save(path string, cp *Checkpoint) error
	Load(path string) *Checkpoint
}

// FileStore keeps each checkpoint as an indented JSON file.
type FileStore struct{}

// NewFileStore creates a file-backed store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Save writes cp to path atomically via a temporary file and rename,
// creating parent directories. cp itself is not modified; the written
// document always carries Version.
func (s *FileStore) Save(path string, cp *Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint: nil checkpoint")
	}
	if path == "" {
		return errors.New("checkpoint: empty path")
	}

	doc := *cp
	doc.Version = Version

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("checkpoint: create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("checkpoint: atomic rename %s: %w", path, err)
	}
	return nil
}

// Load reads the checkpoint at path. It returns nil when the file is
// missing, unreadable, not valid JSON or carries another version.
func (s *FileStore) Load(path string) *Checkpoint {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			debugLog.Warnf("unreadable checkpoint %s: %v", path, err)
		}
		return nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		debugLog.Warnf("corrupt checkpoint %s: %v", path, err)
		return nil
	}
	if cp.Version != Version {
		debugLog.Warnf("checkpoint %s has version %d, want %d", path, cp.Version, Version)
		return nil
	}
	return &cp
}
