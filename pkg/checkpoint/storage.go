package checkpoint

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// Storage persists one Checkpoint per run as a single JSON file under
// directory/<runId>.json, written atomically via write-to-temp-then-rename.
type Storage struct {
	directory string
}

// NewStorage creates a Storage rooted at directory. The directory is
// created lazily on first Save.
func NewStorage(directory string) *Storage {
	return &Storage{directory: directory}
}

func (s *Storage) pathFor(runID string) string {
	return filepath.Join(s.directory, runID+".json")
}

// Save persists cp, overwriting any prior checkpoint for the same run.
func (s *Storage) Save(cp *Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "checkpoint requires a runId")
	}

	if err := os.MkdirAll(s.directory, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "create checkpoints directory")
	}

	data, err := cp.Serialize()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "serialize checkpoint")
	}

	tmp, err := os.CreateTemp(s.directory, ".checkpoint-*.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "create temp checkpoint file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "write temp checkpoint file")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "close temp checkpoint file")
	}

	if err := os.Rename(tmpPath, s.pathFor(cp.RunID)); err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "rename checkpoint file")
	}
	return nil
}

// Load reads the checkpoint for runID.
func (s *Storage) Load(runID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.pathFor(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.CodeCheckpointNotFound, "no checkpoint found for run").WithContext("runId", runID)
		}
		return nil, apperrors.Wrap(apperrors.CodeFilesystemError, err, "read checkpoint file")
	}
	cp, err := Deserialize(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFilesystemError, err, "deserialize checkpoint")
	}
	return cp, nil
}

// Clear removes the checkpoint file for runID, if present.
func (s *Storage) Clear(runID string) error {
	err := os.Remove(s.pathFor(runID))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "remove checkpoint file")
	}
	return nil
}

// ListRunIDs returns the run ids of every checkpoint currently on disk.
func (s *Storage) ListRunIDs() ([]string, error) {
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeFilesystemError, err, "list checkpoints directory")
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// ListAll loads every checkpoint on disk, skipping (with no error surfaced)
// any file that fails to parse.
func (s *Storage) ListAll() ([]*Checkpoint, error) {
	ids, err := s.ListRunIDs()
	if err != nil {
		return nil, err
	}

	var out []*Checkpoint
	for _, id := range ids {
		cp, err := s.Load(id)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}
