package workspace

import (
	"os"
	"path/filepath"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// checkSymlinkEscape walks up from path to the deepest existing ancestor,
// resolves any symlinks along that ancestor, and confirms the resolved
// location is still inside root. The target file itself need not exist yet
// (writes create it), so only existing ancestor directories are resolved.
func checkSymlinkEscape(root, path string) error {
	absRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		// Root doesn't exist yet; nothing to escape through.
		return nil
	}

	dir := filepath.Dir(path)
	for {
		info, statErr := os.Lstat(dir)
		if statErr == nil {
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return apperrors.Wrap(apperrors.CodePathSymlinkEscape, err, "failed to resolve symlinks")
			}
			if !isDescendant(absRoot, resolved) && resolved != absRoot {
				return apperrors.New(apperrors.CodePathSymlinkEscape, "path escapes the namespace root through a symlink")
			}
			_ = info
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}
