package workspace

import (
	"os"
	"path/filepath"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// legacySessionRoot is the on-disk layout an older AutomatosX shape used for
// per-agent, per-session outputs: .automatosx/workspaces/shared/sessions/<id>/outputs/<agent>/...
const legacySessionRoot = ".automatosx/workspaces/shared/sessions"

// LegacyReadPermission gates legacy session-workspace reads, mirroring the
// canReadWorkspaces/canWriteToShared profile tokens the old layout checked.
// The core only reads under the legacy layout; callers are expected to have
// already resolved these tokens from the calling profile before invoking
// ReadSessionOutput.
type LegacyReadPermission struct {
	CanReadWorkspaces bool
}

// ReadSessionOutput reads relPath from a legacy per-session, per-agent
// output directory. It is read-only: the simplified PRD/tmp model is the
// only supported write path going forward.
func (w *Workspace) ReadSessionOutput(perm LegacyReadPermission, sessionID, agentName, relPath string) (string, error) {
	if !perm.CanReadWorkspaces {
		return "", apperrors.New(apperrors.CodeInvalidParams, "caller lacks permission to read legacy session workspaces")
	}
	if sessionID == "" || agentName == "" {
		return "", apperrors.New(apperrors.CodePathInvalid, "sessionID and agentName are required")
	}

	namespace := filepath.Join(legacySessionRoot, sessionID, "outputs", agentName)
	absPath, err := resolvePath(w.namespaceRoot(namespace), relPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Wrap(apperrors.CodeFilesystemError, err, "legacy session output not found").
				WithContext("sessionId", sessionID).
				WithContext("agent", agentName)
		}
		return "", apperrors.Wrap(apperrors.CodeFilesystemError, err, "failed to read legacy session output")
	}
	return string(data), nil
}

// ListSessionOutputs lists every file under a legacy session's per-agent
// output directory.
func (w *Workspace) ListSessionOutputs(perm LegacyReadPermission, sessionID, agentName string) ([]FileInfo, error) {
	if !perm.CanReadWorkspaces {
		return nil, apperrors.New(apperrors.CodeInvalidParams, "caller lacks permission to read legacy session workspaces")
	}
	namespace := filepath.Join(legacySessionRoot, sessionID, "outputs", agentName)
	return w.listNamespace(namespace)
}
