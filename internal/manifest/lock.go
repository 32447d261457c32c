package manifest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nightlyone/lockfile"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

// DefaultPollInterval is how often a blocked lock acquisition retries.
const DefaultPollInterval = 50 * time.Millisecond

// A lockfile owned by our own PID counts as acquired, so goroutines of one
// process also need the held table to exclude each other.
var (
	heldMu sync.Mutex
	held   = make(map[string]bool)
)

type temporary interface {
	Temporary() bool
}

// acquireLock takes the lock file at path, polling until timeout elapses.
func acquireLock(ctx context.Context, path string, timeout, poll time.Duration) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lock path %s: %w", path, err)
	}
	lf, err := lockfile.New(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock %s: %w", abs, err)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := tryLock(abs, lf)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { releaseLock(abs, lf) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, lockedError(abs, lf, timeout)
		}

		wait := poll
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func tryLock(abs string, lf lockfile.Lockfile) (bool, error) {
	heldMu.Lock()
	defer heldMu.Unlock()

	if held[abs] {
		return false, nil
	}

	err := lf.TryLock()
	if err == nil {
		held[abs] = true
		return true, nil
	}
	var tmp temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return false, nil
	}
	return false, fmt.Errorf("failed to lock %s: %w", abs, err)
}

func releaseLock(abs string, lf lockfile.Lockfile) {
	heldMu.Lock()
	defer heldMu.Unlock()

	_ = lf.Unlock()
	delete(held, abs)
}

func lockedError(abs string, lf lockfile.Lockfile, timeout time.Duration) error {
	if proc, err := lf.GetOwner(); err == nil && proc != nil {
		return fmt.Errorf("%w: %s held by pid %d (waited %s)", kerrors.ErrManifestLocked, abs, proc.Pid, timeout)
	}
	return fmt.Errorf("%w: %s (waited %s)", kerrors.ErrManifestLocked, abs, timeout)
}
