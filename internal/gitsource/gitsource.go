// Package gitsource keeps local mirrors of git-hosted deck repositories.
package gitsource

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
)

// Sync clones the repository at url into localPath, or pulls the latest
// changes if a clone already exists there.
func Sync(url, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		return clone(url, localPath)
	case err == nil:
		return pull(localPath)
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
}

func clone(url, localPath string) error {
	slog.Info("cloning deck repository", "url", url, "path", localPath)
	_, err := git.PlainClone(localPath, false, &git.CloneOptions{
		URL: url,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repo %s: %w", url, err)
	}
	return nil
}

func pull(localPath string) error {
	slog.Info("pulling deck repository", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}

	err = worktree.Pull(&git.PullOptions{RemoteName: "origin"})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	return nil
}
