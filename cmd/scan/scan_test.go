package scan

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

var commitStamp = time.Date(2024, 2, 27, 18, 0, 0, 0, time.UTC)

// initRepo creates an on-disk repository with a single commit containing the
// given files. Scan reads the working copy from the real filesystem, so an
// in-memory repository won't do here.
func initRepo(t *testing.T, dir string, files map[string]string) *git.Worktree {
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	for path, contents := range files {
		writeWorkFile(t, dir, path, contents)
		_, err = worktree.Add(path)
		require.NoError(t, err)
	}
	commitAll(t, worktree, "initial", commitStamp)
	return worktree
}

func writeWorkFile(t *testing.T, dir, path, contents string) {
	full := filepath.Join(dir, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0644))
}

func commitAll(t *testing.T, worktree *git.Worktree, msg string, when time.Time) {
	_, err := worktree.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: when},
	})
	require.NoError(t, err)
}

func TestScanDirtyFiles(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, map[string]string{
		"index.php":     "<?php echo 'v1';\n",
		"css/style.css": "body {}\n",
	})

	// Modify a tracked file and create an untracked one.
	writeWorkFile(t, dir, "index.php", "<?php echo 'v2';\n")
	writeWorkFile(t, dir, "js/new.js", "alert(1);\n")

	var out bytes.Buffer
	stdout = &out

	snapshotPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, run(dir, snapshotPath, ""))

	snap, err := snapshot.Load(snapshotPath)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	index, ok := snap.Get("index.php")
	require.True(t, ok)
	assert.False(t, index.LocalHash.Unknown())
	assert.False(t, index.ReferenceHash.Unknown())
	assert.NotEqual(t, index.LocalHash, index.ReferenceHash)
	require.NotNil(t, index.ReferenceTime)
	assert.True(t, index.ReferenceTime.Equal(commitStamp))

	// The untracked file has no reference side.
	newJS, ok := snap.Get("js/new.js")
	require.True(t, ok)
	assert.False(t, newJS.LocalHash.Unknown())
	assert.True(t, newJS.ReferenceHash.Unknown())
	assert.Nil(t, newJS.ReferenceTime)

	assert.Contains(t, out.String(), "Scanning 2 files")
	assert.Contains(t, out.String(), "index.php")
	assert.Contains(t, out.String(), "Saved 2 file records to "+snapshotPath)
}

func TestScanClean(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, map[string]string{"index.php": "<?php\n"})

	var out bytes.Buffer
	stdout = &out

	snapshotPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, run(dir, snapshotPath, ""))

	assert.Contains(t, out.String(), "No dirty files")
	_, err := os.Stat(snapshotPath)
	assert.True(t, os.IsNotExist(err), "a clean tree shouldn't write a snapshot")
}

func TestScanCommit(t *testing.T) {
	dir := t.TempDir()
	worktree := initRepo(t, dir, map[string]string{"index.php": "<?php\n"})

	// A second commit that only touches the stylesheet.
	writeWorkFile(t, dir, "css/style.css", "body {}\n")
	_, err := worktree.Add("css/style.css")
	require.NoError(t, err)
	commitAll(t, worktree, "restyle", commitStamp.Add(time.Hour))

	var out bytes.Buffer
	stdout = &out

	snapshotPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, run(dir, snapshotPath, "HEAD"))

	snap, err := snapshot.Load(snapshotPath)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())

	style, ok := snap.Get("css/style.css")
	require.True(t, ok)
	assert.False(t, style.ReferenceHash.Unknown())
	require.NotNil(t, style.ReferenceTime)
	assert.True(t, style.ReferenceTime.Equal(commitStamp.Add(time.Hour)))
}

func TestScanNotARepo(t *testing.T) {
	var out bytes.Buffer
	stdout = &out

	err := run(t.TempDir(), "snapshot.json", "")
	require.Error(t, err)
	assert.IsType(t, errors.FriendlyError{}, errors.RootCause(err))
}
