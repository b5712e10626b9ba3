// Package gitstate reads the reference state out of the working copy's git
// repository: which paths are dirty, and what a file looked like at a given
// revision.
package gitstate

import (
	"io"
	"sort"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/stagecheck/stagecheck/pkg/errors"
)

// Repository wraps a local git repository.
type Repository struct {
	repo *git.Repository
}

// Open opens the repository rooted at the given working copy directory.
func Open(workdir string) (*Repository, error) {
	repo, err := git.PlainOpen(workdir)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, errors.NewFriendlyError(
				"%q is not the root of a git repository.", workdir)
		}
		return nil, errors.WithContext(err, "open git repository")
	}
	return &Repository{repo: repo}, nil
}

// DirtyPaths returns the sorted paths that differ from HEAD in the working
// copy, including untracked and deleted files.
func (r *Repository) DirtyPaths() ([]string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, errors.WithContext(err, "get worktree")
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, errors.WithContext(err, "get worktree status")
	}

	var paths []string
	for path, fileStatus := range status {
		if fileStatus.Staging == git.Unmodified &&
			fileStatus.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// At resolves the given revision (e.g. "HEAD", a branch name, or a commit
// hash) into a commit view.
func (r *Repository) At(ref string) (*Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, errors.NewFriendlyError("Unknown git revision %q.", ref)
		}
		return nil, errors.WithContext(err, "resolve revision")
	}

	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, errors.WithContext(err, "get commit")
	}
	return &Commit{repo: r.repo, commit: commit}, nil
}

// Commit is a view of the repository at a resolved revision.
type Commit struct {
	repo   *git.Repository
	commit *object.Commit
}

// Contents returns the contents of the file at the commit.
func (c *Commit) Contents(path string) ([]byte, error) {
	file, err := c.commit.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.WithContext(err, "look up file")
	}

	contents, err := file.Contents()
	if err != nil {
		return nil, errors.WithContext(err, "read file")
	}
	return []byte(contents), nil
}

// LastChange returns the author time of the most recent commit, up to and
// including this one, that touched the given path. The zero time is
// returned when no commit touched the path.
func (c *Commit) LastChange(path string) (time.Time, error) {
	iter, err := c.repo.Log(&git.LogOptions{
		From:     c.commit.Hash,
		FileName: &path,
	})
	if err != nil {
		return time.Time{}, errors.WithContext(err, "walk history")
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil {
		if err == io.EOF {
			return time.Time{}, nil
		}
		return time.Time{}, errors.WithContext(err, "walk history")
	}
	return commit.Author.When, nil
}

// ChangedPaths returns the sorted paths modified by this commit.
func (c *Commit) ChangedPaths() ([]string, error) {
	stats, err := c.commit.Stats()
	if err != nil {
		return nil, errors.WithContext(err, "get commit stats")
	}

	var paths []string
	for _, stat := range stats {
		paths = append(paths, stat.Name)
	}
	sort.Strings(paths)
	return paths, nil
}
