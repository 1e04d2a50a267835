package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

const (
	prdDir = "PRD"
	tmpDir = "tmp"
)

// dirMode is used whenever a namespace directory is created on demand.
const dirMode = 0o755

// FileInfo describes one entry returned by a list operation.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// NamespaceStats summarizes one namespace's occupancy.
type NamespaceStats struct {
	FileCount int
	TotalSize int64
}

// Stats summarizes the whole workspace.
type Stats struct {
	PRD NamespaceStats
	Tmp NamespaceStats
}

// Workspace is a scoped filesystem rooted at Root, exposing the PRD/ and
// tmp/ namespaces. Namespace directories are created lazily on first write
// and the fact that they've been ensured is cached so repeated writes don't
// re-stat the directory tree.
type Workspace struct {
	Root string

	mu      sync.Mutex
	ensured map[string]bool
}

// New creates a Workspace rooted at root. Root itself is not created until
// the first write.
func New(root string) *Workspace {
	return &Workspace{Root: root, ensured: make(map[string]bool)}
}

func (w *Workspace) namespaceRoot(name string) string {
	return filepath.Join(w.Root, name)
}

// ensureNamespace creates the namespace directory if it hasn't been ensured
// yet. Concurrent callers serialize on w.mu so no caller ever observes a
// partially-created directory.
func (w *Workspace) ensureNamespace(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ensured[name] {
		return nil
	}
	if err := os.MkdirAll(w.namespaceRoot(name), dirMode); err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "failed to create namespace directory").
			WithContext("namespace", name)
	}
	w.ensured[name] = true
	return nil
}

func (w *Workspace) writeNamespace(namespace, relPath, content string) error {
	if err := w.ensureNamespace(namespace); err != nil {
		return err
	}
	if len(content) > MaxFileSize {
		return apperrors.New(apperrors.CodePathTooLarge, "content exceeds maximum file size").
			WithContext("maxBytes", MaxFileSize).
			WithContext("actualBytes", len(content))
	}

	absPath, err := resolvePath(w.namespaceRoot(namespace), relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), dirMode); err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "failed to create parent directory")
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeFilesystemError, err, "failed to write file")
	}
	return nil
}

func (w *Workspace) readNamespace(namespace, relPath string) (string, error) {
	absPath, err := resolvePath(w.namespaceRoot(namespace), relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Wrap(apperrors.CodeFilesystemError, err, "file not found").
				WithContext("path", relPath)
		}
		return "", apperrors.Wrap(apperrors.CodeFilesystemError, err, "failed to read file")
	}
	return string(data), nil
}

func (w *Workspace) listNamespace(namespace string) ([]FileInfo, error) {
	root := w.namespaceRoot(namespace)
	var out []FileInfo

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, FileInfo{Path: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFilesystemError, err, "failed to list namespace").
			WithContext("namespace", namespace)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// WritePRD writes content to relPath under the PRD namespace.
func (w *Workspace) WritePRD(relPath, content string) error {
	return w.writeNamespace(prdDir, relPath, content)
}

// ReadPRD reads relPath from the PRD namespace.
func (w *Workspace) ReadPRD(relPath string) (string, error) {
	return w.readNamespace(prdDir, relPath)
}

// ListPRD lists every file under the PRD namespace.
func (w *Workspace) ListPRD() ([]FileInfo, error) {
	return w.listNamespace(prdDir)
}

// WriteTmp writes content to relPath under the tmp namespace.
func (w *Workspace) WriteTmp(relPath, content string) error {
	return w.writeNamespace(tmpDir, relPath, content)
}

// ReadTmp reads relPath from the tmp namespace.
func (w *Workspace) ReadTmp(relPath string) (string, error) {
	return w.readNamespace(tmpDir, relPath)
}

// ListTmp lists every file under the tmp namespace.
func (w *Workspace) ListTmp() ([]FileInfo, error) {
	return w.listNamespace(tmpDir)
}

// CleanupTmp removes tmp files older than olderThanDays (by modification
// time), returning the count removed. olderThanDays <= 0 removes every file.
func (w *Workspace) CleanupTmp(olderThanDays int) (int, error) {
	root := w.namespaceRoot(tmpDir)
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	removed := 0

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if olderThanDays <= 0 || info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, apperrors.Wrap(apperrors.CodeFilesystemError, err, "failed to clean up tmp namespace")
	}
	return removed, nil
}

// GetStats reports file counts and byte totals per namespace.
func (w *Workspace) GetStats() (Stats, error) {
	prd, err := w.listNamespace(prdDir)
	if err != nil {
		return Stats{}, err
	}
	tmp, err := w.listNamespace(tmpDir)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	stats.PRD.FileCount = len(prd)
	for _, f := range prd {
		stats.PRD.TotalSize += f.Size
	}
	stats.Tmp.FileCount = len(tmp)
	for _, f := range tmp {
		stats.Tmp.TotalSize += f.Size
	}
	return stats, nil
}
