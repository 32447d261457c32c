package reencrypt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/oplog"
	"github.com/PolarWolf314/lockbox/internal/secrets"
)

// State is a coordinator phase.
type State string

const (
	StateIdle       State = "IDLE"
	StatePlanning   State = "PLANNING"
	StateExecuting  State = "EXECUTING"
	StateCommitting State = "COMMITTING"
	StateResuming   State = "RESUMING"
)

// Crypto is the subset of backend.Adapter the coordinator needs.
type Crypto interface {
	Encrypt(ctx context.Context, plaintext []byte, recipients []string) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Coordinator re-encrypts stale files for one repository.
type Coordinator struct {
	Store   *manifest.Store
	Objects *secrets.ObjectStore
	Staging *secrets.Staging
	Log     *oplog.Log
	Crypto  Crypto

	// Workers bounds how many files are processed at once.
	Workers int

	Logger logger.Logger

	// OnState observes every state transition.
	OnState func(State)

	// OnFile is called after each file finishes executing. It may be
	// called from several workers at once.
	OnFile func(path string, err error)

	// NewID returns operation ids. Defaults to a random UUID.
	NewID func() string
}

// Result summarises a run.
type Result struct {
	OperationID   string
	TargetVersion int

	// Planned is the number of files in the work list.
	Planned int

	// Reencrypted lists the committed paths, sorted.
	Reencrypted []string

	// Reused counts staged files carried over from an interrupted run.
	Reused int

	Resumed    bool
	RolledBack bool

	// Reconciled is true when the registry was dirty and is now clean.
	Reconciled bool

	PrunedObjects int
	PrunedSets    int
}

// work is one planned file.
type work struct {
	oplog.PlannedFile
	plaintextDigest string
}

// staged is a verified staged blob for a planned file.
type staged struct {
	digest          string
	plaintextDigest string
}

// Run executes one full reconciliation.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	unlock, err := c.Store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	defer c.transition(StateIdle)

	m, err := c.Store.Load()
	if err != nil {
		return nil, err
	}

	result := &Result{TargetVersion: m.RecipientVersion}

	pending, err := c.Log.Read()
	if err != nil {
		return nil, err
	}
	if pending != nil {
		c.transition(StateResuming)
		if pending, err = c.resume(m, pending, result); err != nil {
			return nil, err
		}
	} else if err := c.Staging.Discard(""); err != nil {
		return nil, err
	}

	c.transition(StatePlanning)
	opID, plan, done, err := c.plan(m, pending, result)
	if err != nil {
		return nil, err
	}
	result.OperationID = opID
	result.Planned = len(plan)

	if len(plan) == 0 {
		if !m.Dirty() && pending == nil {
			c.Logger.Infof("All tracked files are current at recipient version %d", m.RecipientVersion)
			return result, nil
		}
		c.transition(StateCommitting)
		return result, c.commit(m, opID, nil, nil, result)
	}

	todo := make([]work, 0, len(plan))
	for _, w := range plan {
		if _, ok := done[w.Path]; !ok {
			todo = append(todo, w)
		}
	}
	result.Reused = len(plan) - len(todo)

	c.transition(StateExecuting)
	c.Logger.Infof("Re-encrypting %d file(s) for recipient version %d (%d already staged)",
		len(todo), m.RecipientVersion, result.Reused)

	failed, err := c.execute(ctx, m, opID, todo, done)
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		return nil, &kerrors.PartialReencryptionError{Failed: failed, Staged: len(done)}
	}

	c.transition(StateCommitting)
	return result, c.commit(m, opID, plan, done, result)
}

// resume decides whether the interrupted operation can continue. It rolls
// back when the registry moved on since the operation was planned.
func (c *Coordinator) resume(m *manifest.Manifest, pending *oplog.Pending, result *Result) (*oplog.Pending, error) {
	if pending.TargetVersion != m.RecipientVersion {
		c.Logger.Infof("Discarding operation %s: planned for version %d, live version is %d",
			pending.OperationID, pending.TargetVersion, m.RecipientVersion)
		if err := c.Staging.Discard(""); err != nil {
			return nil, err
		}
		if err := c.Log.Purge(); err != nil {
			return nil, err
		}
		result.RolledBack = true
		return nil, nil
	}

	c.Logger.Infof("Resuming operation %s (%d staged, %d failed)",
		pending.OperationID, len(pending.Staged), len(pending.Failed))
	if err := c.Staging.Discard(pending.OperationID); err != nil {
		return nil, err
	}
	result.Resumed = true
	return pending, nil
}

// plan builds the work list. When resuming it keeps the logged plan minus
// files whose manifest entry changed since planning, and carries over
// staged blobs that still verify.
func (c *Coordinator) plan(m *manifest.Manifest, pending *oplog.Pending, result *Result) (string, []work, map[string]staged, error) {
	done := make(map[string]staged)
	stale := m.ListStale()

	if len(stale) > 0 && len(m.LiveSet().Fingerprints) == 0 {
		return "", nil, nil, fmt.Errorf("%w: %d stale file(s) but no active members", kerrors.ErrEmptyRecipientSet, len(stale))
	}

	toWork := func(tf *manifest.TrackedFile) work {
		return work{
			PlannedFile: oplog.PlannedFile{
				Path:          tf.Path,
				SourceDigest:  tf.CiphertextDigest,
				SourceVersion: tf.RecipientVersion,
			},
			plaintextDigest: tf.PlaintextDigest,
		}
	}

	if pending == nil {
		if len(stale) == 0 {
			return "", nil, done, nil
		}
		opID := c.newID()
		plan := make([]work, 0, len(stale))
		planned := make([]oplog.PlannedFile, 0, len(stale))
		for _, tf := range stale {
			w := toWork(tf)
			plan = append(plan, w)
			planned = append(planned, w.PlannedFile)
		}
		if err := c.Log.Begin(opID, m.RecipientVersion, planned); err != nil {
			return "", nil, nil, err
		}
		return opID, plan, done, nil
	}

	area := c.Staging.Area(pending.OperationID)
	inPlan := make(map[string]bool)
	var plan []work
	for _, p := range pending.Planned {
		tf, ok := m.Get(p.Path)
		if !ok || tf.CiphertextDigest != p.SourceDigest || tf.RecipientVersion >= m.RecipientVersion {
			c.Logger.Debugf("Dropping %s from operation %s: entry changed since planning", p.Path, pending.OperationID)
			continue
		}
		inPlan[p.Path] = true
		plan = append(plan, toWork(tf))

		rec, ok := pending.Staged[p.Path]
		if !ok {
			continue
		}
		if area.Verify(rec.Digest) == nil || c.Objects.Verify(rec.Digest) == nil {
			done[p.Path] = staged{digest: rec.Digest, plaintextDigest: rec.PlaintextDigest}
		} else {
			c.Logger.Debugf("Staged blob for %s did not verify, redoing it", p.Path)
		}
	}
	for _, tf := range stale {
		if !inPlan[tf.Path] {
			plan = append(plan, toWork(tf))
		}
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].Path < plan[j].Path })

	return pending.OperationID, plan, done, nil
}

// execute re-encrypts todo into the staging area. Successful files are
// added to done; the returned map holds per-file failures.
func (c *Coordinator) execute(ctx context.Context, m *manifest.Manifest, opID string, todo []work, done map[string]staged) (map[string]error, error) {
	recipients := m.LiveSet().Fingerprints
	area := c.Staging.Area(opID)

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
		g      errgroup.Group
	)
	g.SetLimit(c.workers())

	for _, w := range todo {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			s, err := c.reencryptOne(ctx, area, recipients, w)
			if err == nil {
				err = c.Log.Staged(opID, w.Path, s.digest, s.plaintextDigest)
			}
			if ctx.Err() != nil {
				return nil
			}

			mu.Lock()
			if err != nil {
				failed[w.Path] = err
			} else {
				done[w.Path] = s
			}
			mu.Unlock()

			if err != nil {
				c.Logger.Warnf("Failed to re-encrypt %s: %v", w.Path, err)
				_ = c.Log.Failed(opID, w.Path, err)
			}
			if c.OnFile != nil {
				c.OnFile(w.Path, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		c.Logger.Infof("Operation %s interrupted; staged work is kept for the next run", opID)
		return nil, err
	}
	return failed, nil
}

func (c *Coordinator) reencryptOne(ctx context.Context, area *secrets.ObjectStore, recipients []string, w work) (staged, error) {
	ciphertext, err := c.Objects.Get(w.SourceDigest)
	if err != nil {
		return staged{}, withPath(w.Path, err)
	}

	plaintext, err := c.Crypto.Decrypt(ctx, ciphertext)
	if err != nil {
		return staged{}, err
	}
	ptDigest := secrets.Digest(plaintext)
	if w.plaintextDigest != "" && ptDigest != w.plaintextDigest {
		return staged{}, kerrors.Corrupt(w.Path, "decrypted content has digest %s, manifest records %s", ptDigest, w.plaintextDigest)
	}

	out, err := c.Crypto.Encrypt(ctx, plaintext, recipients)
	if err != nil {
		return staged{}, err
	}
	digest, err := area.Put(out)
	if err != nil {
		return staged{}, err
	}
	return staged{digest: digest, plaintextDigest: ptDigest}, nil
}

// commit adopts staged blobs and replaces the manifest in one step, then
// cleans up. Cleanup failures are logged, not returned: the commit has
// already happened.
func (c *Coordinator) commit(m *manifest.Manifest, opID string, plan []work, done map[string]staged, result *Result) error {
	next := m.Clone()

	if len(plan) > 0 {
		area := c.Staging.Area(opID)
		for _, w := range plan {
			s := done[w.Path]
			if err := c.Objects.Adopt(area, s.digest); err != nil {
				return withPath(w.Path, err)
			}
			if err := next.Reencrypted(w.Path, m.RecipientVersion, s.digest, s.plaintextDigest); err != nil {
				return err
			}
			result.Reencrypted = append(result.Reencrypted, w.Path)
		}
	}

	result.Reconciled = next.Dirty()
	next.ReconciledVersion = next.RecipientVersion
	result.PrunedSets = next.PruneRecipientSets()

	if err := c.Store.Save(next); err != nil {
		return err
	}

	pruned, err := c.Objects.Prune(next.ReferencedObjects())
	if err != nil {
		c.Logger.Warnf("Failed to prune objects: %v", err)
	}
	result.PrunedObjects = pruned

	if err := c.Log.Purge(); err != nil {
		c.Logger.Warnf("%v", err)
	}
	if err := c.Staging.Discard(""); err != nil {
		c.Logger.Warnf("Failed to clear staging: %v", err)
	}

	sort.Strings(result.Reencrypted)
	c.Logger.Infof("Committed recipient version %d (%d file(s) re-encrypted)", next.RecipientVersion, len(result.Reencrypted))
	return nil
}

func (c *Coordinator) transition(s State) {
	c.Logger.Debugf("reencrypt: %s", s)
	if c.OnState != nil {
		c.OnState(s)
	}
}

func (c *Coordinator) workers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}

func (c *Coordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

// withPath attaches path to an integrity error that lacks one.
func withPath(path string, err error) error {
	var corrupt *kerrors.CorruptManifestError
	if errors.As(err, &corrupt) && corrupt.Path == "" {
		return &kerrors.CorruptManifestError{Path: path, Reason: corrupt.Reason}
	}
	return err
}
