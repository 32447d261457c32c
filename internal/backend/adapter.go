package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
)

// Options bound every backend call.
type Options struct {
	// Timeout bounds a single attempt, including any passphrase prompt.
	Timeout time.Duration

	// Retries is the number of extra attempts after a transient failure.
	Retries int

	// RetryInterval is the initial backoff between attempts.
	RetryInterval time.Duration

	Log logger.Logger
}

// Adapter wraps a Backend with input validation, per-call timeouts,
// transient-error retry, and error classification.
type Adapter struct {
	backend Backend
	opts    Options
}

// NewAdapter wraps b.
func NewAdapter(b Backend, opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 250 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Adapter{backend: b, opts: opts}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend {
	return a.backend
}

// Encrypt encrypts plaintext for recipients. Duplicate fingerprints are
// collapsed and an empty set fails with ErrEmptyRecipientSet.
func (a *Adapter) Encrypt(ctx context.Context, plaintext []byte, recipients []string) ([]byte, error) {
	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		return nil, kerrors.ErrEmptyRecipientSet
	}

	return a.retry(ctx, "encrypt", func(callCtx context.Context) ([]byte, error) {
		return a.backend.Encrypt(callCtx, plaintext, recipients)
	})
}

// Decrypt decrypts ciphertext with the caller's keys.
func (a *Adapter) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, kerrors.ErrInvalidCiphertext
	}

	return a.retry(ctx, "decrypt", func(callCtx context.Context) ([]byte, error) {
		return a.backend.Decrypt(callCtx, ciphertext)
	})
}

type callFunc func(context.Context) ([]byte, error)

func (a *Adapter) retry(ctx context.Context, op string, call callFunc) ([]byte, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = a.opts.RetryInterval
	expo.MaxElapsedTime = 0
	expo.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(a.opts.Retries)), ctx)

	var out []byte
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()

		res, err := a.bounded(callCtx, call)
		if err = a.classify(ctx, callCtx, err); err == nil {
			out = res
			return nil
		}
		if ctx.Err() != nil || !kerrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		a.opts.Log.Debugf("%s %s attempt %d failed: %v", a.backend.Name(), op, attempt, err)
		return err
	}, policy)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// bounded runs call but returns as soon as callCtx ends, even when the
// backend blocks without watching its context. An abandoned call finishes
// in the background and its result is dropped.
func (a *Adapter) bounded(callCtx context.Context, call callFunc) ([]byte, error) {
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := call(callCtx)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-callCtx.Done():
		return nil, callCtx.Err()
	}
}

// classify maps raw backend errors onto the error taxonomy.
func (a *Adapter) classify(ctx, callCtx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, kerrors.ErrUnauthorizedDecrypt),
		errors.Is(err, kerrors.ErrInvalidCiphertext),
		errors.Is(err, kerrors.ErrEmptyRecipientSet),
		errors.Is(err, kerrors.ErrPublicKeyNotFound),
		errors.Is(err, kerrors.ErrBackendTimeout),
		errors.Is(err, kerrors.ErrBackendUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil:
		return fmt.Errorf("%w: %s call exceeded %s", kerrors.ErrBackendTimeout, a.backend.Name(), a.opts.Timeout)
	default:
		return err
	}
}

func dedupe(fps []string) []string {
	seen := make(map[string]bool, len(fps))
	out := make([]string, 0, len(fps))
	for _, fp := range fps {
		if fp == "" || seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, fp)
	}
	return out
}
