package gitstate

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecheck/stagecheck/pkg/errors"
)

var (
	commitTimeOne = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	commitTimeTwo = time.Date(2024, 2, 20, 16, 30, 0, 0, time.UTC)
)

// newTestRepo creates an in-memory repository with two commits. The first
// commit adds index.php and css/style.css, and the second commit modifies
// only css/style.css.
func newTestRepo(t *testing.T) (*Repository, *git.Worktree) {
	repo, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, worktree, "index.php", "<?php echo 'v1';\n")
	writeFile(t, worktree, "css/style.css", "body {}\n")
	commit(t, worktree, "initial", commitTimeOne)

	writeFile(t, worktree, "css/style.css", "body { color: red; }\n")
	commit(t, worktree, "restyle", commitTimeTwo)

	return &Repository{repo: repo}, worktree
}

func writeFile(t *testing.T, worktree *git.Worktree, path, contents string) {
	f, err := worktree.Filesystem.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = worktree.Add(path)
	require.NoError(t, err)
}

func commit(t *testing.T, worktree *git.Worktree, msg string, when time.Time) {
	_, err := worktree.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: when},
	})
	require.NoError(t, err)
}

func TestDirtyPaths(t *testing.T) {
	repo, worktree := newTestRepo(t)

	paths, err := repo.DirtyPaths()
	require.NoError(t, err)
	assert.Empty(t, paths, "a freshly committed tree should be clean")

	// Modify a tracked file and create an untracked one, without staging.
	f, err := worktree.Filesystem.Create("index.php")
	require.NoError(t, err)
	_, err = f.Write([]byte("<?php echo 'v2';\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = worktree.Filesystem.Create("js/new.js")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	paths, err = repo.DirtyPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"index.php", "js/new.js"}, paths)
}

func TestContents(t *testing.T) {
	repo, _ := newTestRepo(t)

	head, err := repo.At("HEAD")
	require.NoError(t, err)

	contents, err := head.Contents("css/style.css")
	require.NoError(t, err)
	assert.Equal(t, "body { color: red; }\n", string(contents))

	_, err = head.Contents("nonexistent.php")
	assert.Equal(t, errors.FileNotFound{Path: "nonexistent.php"}, errors.RootCause(err))
}

func TestAtUnknownRevision(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.At("no-such-branch")
	require.Error(t, err)
	assert.IsType(t, errors.FriendlyError{}, errors.RootCause(err))
}

func TestLastChange(t *testing.T) {
	repo, _ := newTestRepo(t)

	head, err := repo.At("HEAD")
	require.NoError(t, err)

	// index.php was last touched by the first commit.
	when, err := head.LastChange("index.php")
	require.NoError(t, err)
	assert.True(t, when.Equal(commitTimeOne))

	when, err = head.LastChange("css/style.css")
	require.NoError(t, err)
	assert.True(t, when.Equal(commitTimeTwo))

	when, err = head.LastChange("never-existed.php")
	require.NoError(t, err)
	assert.True(t, when.IsZero())
}

func TestChangedPaths(t *testing.T) {
	repo, _ := newTestRepo(t)

	head, err := repo.At("HEAD")
	require.NoError(t, err)
	paths, err := head.ChangedPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"css/style.css"}, paths)

	first, err := repo.At("HEAD~1")
	require.NoError(t, err)
	paths, err = first.ChangedPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"css/style.css", "index.php"}, paths)
}
