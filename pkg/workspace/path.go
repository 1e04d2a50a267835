// Package workspace implements the scoped, path-traversal-safe filesystem
// AutomatosX exposes to agents: a PRD namespace for permanent planning
// documents and a tmp namespace for ephemeral scratch, both rooted at the
// project directory, plus read-only support for the legacy per-session
// workspace layout.
package workspace

import (
	"path/filepath"
	"strings"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// MaxFileSize bounds how large a single written file may be.
const MaxFileSize = 10 * 1024 * 1024 // 10 MiB

// resolvePath validates relPath against root the same way the teacher's
// validateWritePath does (reject absolute paths, reject ".." components,
// reject the bare root, verify containment), then additionally resolves
// symlinks on the parent directory to ensure nothing escapes root through a
// link.
func resolvePath(root, relPath string) (string, error) {
	if relPath == "" {
		return "", apperrors.New(apperrors.CodePathInvalid, "path must not be empty")
	}
	if filepath.IsAbs(relPath) {
		return "", apperrors.New(apperrors.CodePathTraversal, "absolute paths are not allowed").
			WithContext("path", relPath)
	}

	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	if cleaned == "." {
		return "", apperrors.New(apperrors.CodePathInvalid, "path must not be the namespace root itself").
			WithContext("path", relPath)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.CodePathTraversal, "path escapes the namespace root").
			WithContext("path", relPath)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodePathInvalid, err, "invalid namespace root")
	}
	absPath := filepath.Join(absRoot, cleaned)

	if !isDescendant(absRoot, absPath) {
		return "", apperrors.New(apperrors.CodePathOutsideRoot, "resolved path escapes the namespace root").
			WithContext("path", relPath)
	}

	if err := checkSymlinkEscape(absRoot, absPath); err != nil {
		return "", err
	}

	return absPath, nil
}

func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
