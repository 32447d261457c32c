package configs

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

// OpenRepository opens the git repository containing dir.
func OpenRepository(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrNotARepository, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}
	return repo, nil
}

// FindRepositoryRoot returns the work tree root of the repository containing dir.
func FindRepositoryRoot(dir string) (string, error) {
	repo, err := OpenRepository(dir)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("%w: %s has no work tree: %v", kerrors.ErrNotARepository, dir, err)
	}
	return wt.Filesystem.Root(), nil
}

// GitUserEmail returns user.email from the repository's merged git config,
// or "" when none is configured.
func GitUserEmail(dir string) string {
	repo, err := OpenRepository(dir)
	if err != nil {
		return ""
	}
	cfg, err := repo.ConfigScoped(gitconfig.GlobalScope)
	if err != nil {
		return ""
	}
	return cfg.User.Email
}
