package workflows

import (
	"context"

	"github.com/PolarWolf314/lockbox/internal/audit"
	"github.com/PolarWolf314/lockbox/internal/backend"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/reencrypt"
)

// ReencryptOptions configures the reencrypt workflow.
type ReencryptOptions struct {
	// Workers overrides the configured worker count when positive.
	Workers int

	// OnFile observes each file as it finishes.
	OnFile func(path string, err error)

	// OnState observes coordinator state transitions.
	OnState func(reencrypt.State)

	Backend backend.Backend
	Logger  logger.Logger
}

// ReencryptResult contains the outcome of a reencrypt operation.
type ReencryptResult struct {
	*reencrypt.Result

	// Workers is the worker count that was used.
	Workers int
}

// NeedsRenormalize reports whether git's index still holds ciphertext
// for the old recipient set. `git add --renormalize` refreshes it.
func (r *ReencryptResult) NeedsRenormalize() bool {
	return len(r.Reencrypted) > 0
}

// Reencrypt brings every tracked file up to the live recipient set. It
// resumes or rolls back an interrupted run first.
//
// Returns ErrManifestLocked if another command holds the lock.
// Returns ErrEmptyRecipientSet if files are stale but nobody is active.
// Returns a *PartialReencryptionError if some files failed; the committed
// state is unchanged and finished files stay staged for the next run.
func Reencrypt(ctx context.Context, opts ReencryptOptions) (*ReencryptResult, error) {
	p, err := openProject(opts.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}
	return reencryptProject(ctx, p, opts)
}

func reencryptProject(ctx context.Context, p *project, opts ReencryptOptions) (*ReencryptResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = p.config.Workers
	}

	c := &reencrypt.Coordinator{
		Store:   p.store,
		Objects: p.objects,
		Staging: p.staging,
		Log:     p.oplog,
		Crypto:  p.crypto,
		Workers: workers,
		Logger:  p.log,
		OnState: opts.OnState,
		OnFile:  opts.OnFile,
	}

	res, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}

	if len(res.Reencrypted) > 0 || res.Reconciled {
		entry := audit.LogWithUser(audit.OpReencrypt)
		entry.Files = res.Reencrypted
		entry.FilesCount = len(res.Reencrypted)
		entry.OperationID = res.OperationID
		entry.RecipientVersion = res.TargetVersion
		audit.Log(entry)
	}

	return &ReencryptResult{Result: res, Workers: workers}, nil
}
