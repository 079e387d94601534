// Package gitutil lists the files a git worktree reports as changed.
package gitutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
)

// ErrNotRepository is returned when path is not inside a git worktree.
var ErrNotRepository = errors.New("not a git repository")

// ModifiedFiles returns the absolute paths of files that are modified,
// added, renamed, copied or untracked in the worktree containing path.
// Deleted and ignored files are left out since there is nothing to check.
func ModifiedFiles(path string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read git status: %w", err)
	}

	top := wt.Filesystem.Root()
	var files []string
	for name, st := range status {
		if !changed(st) {
			continue
		}
		files = append(files, filepath.Join(top, filepath.FromSlash(name)))
	}
	sort.Strings(files)
	return files, nil
}

func changed(st *git.FileStatus) bool {
	if st.Staging == git.Deleted || st.Worktree == git.Deleted {
		return false
	}
	for _, code := range []git.StatusCode{st.Staging, st.Worktree} {
		switch code {
		case git.Modified, git.Added, git.Renamed, git.Copied, git.Untracked, git.UpdatedButUnmerged:
			return true
		}
	}
	return false
}
