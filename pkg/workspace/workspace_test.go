package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	return New(t.TempDir())
}

func TestWritePRDThenReadPRD(t *testing.T) {
	w := newTestWorkspace(t)

	require.NoError(t, w.WritePRD("design/plan.md", "the plan"))
	content, err := w.ReadPRD("design/plan.md")
	require.NoError(t, err)
	assert.Equal(t, "the plan", content)
}

func TestWriteCreatesParentDirectoriesLazily(t *testing.T) {
	w := newTestWorkspace(t)

	require.NoError(t, w.WriteTmp("a/b/c/scratch.txt", "data"))
	info, err := os.Stat(filepath.Join(w.Root, tmpDir, "a", "b", "c", "scratch.txt"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestRejectsAbsolutePath(t *testing.T) {
	w := newTestWorkspace(t)
	err := w.WritePRD("/etc/passwd", "x")
	assert.Error(t, err)
}

func TestRejectsParentTraversal(t *testing.T) {
	w := newTestWorkspace(t)
	err := w.WritePRD("../escape.txt", "x")
	assert.Error(t, err)

	err = w.WritePRD("a/../../escape.txt", "x")
	assert.Error(t, err)
}

func TestRejectsBareNamespaceRoot(t *testing.T) {
	w := newTestWorkspace(t)
	err := w.WritePRD(".", "x")
	assert.Error(t, err)
}

func TestRejectsOversizedContent(t *testing.T) {
	w := newTestWorkspace(t)
	big := strings.Repeat("a", MaxFileSize+1)
	err := w.WriteTmp("big.txt", big)
	assert.Error(t, err)
}

func TestSymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	w := New(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, tmpDir), dirMode))
	linkPath := filepath.Join(root, tmpDir, "escape")
	require.NoError(t, os.Symlink(outside, linkPath))

	err := w.WriteTmp("escape/file.txt", "data")
	assert.Error(t, err)
}

func TestListPRDReturnsSortedEntries(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WritePRD("b.md", "b"))
	require.NoError(t, w.WritePRD("a.md", "a"))

	files, err := w.ListPRD()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.md", files[0].Path)
	assert.Equal(t, "b.md", files[1].Path)
}

func TestListNamespaceEmptyBeforeAnyWrite(t *testing.T) {
	w := newTestWorkspace(t)
	files, err := w.ListTmp()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCleanupTmpRemovesOldFiles(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WriteTmp("old.txt", "old"))
	require.NoError(t, w.WriteTmp("new.txt", "new"))

	oldPath := filepath.Join(w.Root, tmpDir, "old.txt")
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, old, old))

	removed, err := w.CleanupTmp(1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	files, err := w.ListTmp()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "new.txt", files[0].Path)
}

func TestGetStatsCountsFilesAndBytes(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WritePRD("one.md", "12345"))
	require.NoError(t, w.WriteTmp("scratch.txt", "ab"))

	stats, err := w.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PRD.FileCount)
	assert.EqualValues(t, 5, stats.PRD.TotalSize)
	assert.Equal(t, 1, stats.Tmp.FileCount)
	assert.EqualValues(t, 2, stats.Tmp.TotalSize)
}

func TestReadSessionOutputRequiresPermission(t *testing.T) {
	w := newTestWorkspace(t)
	legacyDir := filepath.Join(w.Root, legacySessionRoot, "sess-1", "outputs", "coder")
	require.NoError(t, os.MkdirAll(legacyDir, dirMode))
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "result.txt"), []byte("legacy output"), 0o644))

	_, err := w.ReadSessionOutput(LegacyReadPermission{CanReadWorkspaces: false}, "sess-1", "coder", "result.txt")
	assert.Error(t, err)

	content, err := w.ReadSessionOutput(LegacyReadPermission{CanReadWorkspaces: true}, "sess-1", "coder", "result.txt")
	require.NoError(t, err)
	assert.Equal(t, "legacy output", content)
}
