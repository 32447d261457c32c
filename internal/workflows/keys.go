package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/lockbox/internal/backend"
	"github.com/PolarWolf314/lockbox/internal/configs"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/registry"
)

// KeyGenerateOptions configures the key generate workflow.
type KeyGenerateOptions struct {
	// Name is the key's user ID name. Defaults to the OS username.
	Name string

	// Email is the key's user ID email. Defaults to git user.email.
	Email string

	Backend backend.Backend
	Logger  logger.Logger
}

// KeyGenerate creates a personal key pair in the caller's keyring. It
// works outside a project.
func KeyGenerate(ctx context.Context, opts KeyGenerateOptions) (*backend.KeyInfo, error) {
	km, err := keyManager(opts.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" && configs.UserLockboxSettings != nil {
		name = configs.UserLockboxSettings.Username
	}
	email := opts.Email
	if email == "" {
		if settings := configs.ProjectLockboxSettings; settings.Initialized() {
			email = configs.GitUserEmail(settings.ProjectPath)
		}
	}

	opts.Logger.Infof("Generating key for %s <%s>", name, email)
	info, err := km.GenerateKey(ctx, name, email)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// KeyListOptions configures the key list workflow.
type KeyListOptions struct {
	Backend backend.Backend
	Logger  logger.Logger
}

// KeyList lists the caller's personal keys, oldest first.
func KeyList(ctx context.Context, opts KeyListOptions) ([]backend.KeyInfo, error) {
	km, err := keyManager(opts.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}
	return km.ListKeys(ctx)
}

// KeyRemoveOptions configures the key remove workflow.
type KeyRemoveOptions struct {
	// Fingerprint is a full fingerprint or 64-bit key id.
	Fingerprint string

	Backend backend.Backend
	Logger  logger.Logger
}

// KeyRemoveResult reports the removed key.
type KeyRemoveResult struct {
	Key backend.KeyInfo

	// ActiveMember is set when the key still belongs to an active member of
	// the current project, so files encrypted for it are no longer readable
	// on this machine.
	ActiveMember bool
}

// KeyRemove deletes a personal key from the caller's keyring. It works
// outside a project; inside one it also reports whether the key was in use.
//
// Returns ErrKeyNotFound if the keyring has no such key.
func KeyRemove(ctx context.Context, opts KeyRemoveOptions) (*KeyRemoveResult, error) {
	fp, err := registry.NormalizeFingerprint(opts.Fingerprint)
	if err != nil {
		return nil, err
	}
	km, err := keyManager(opts.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}

	info, err := km.RemoveKey(ctx, fp)
	if err != nil {
		return nil, err
	}
	opts.Logger.Infof("Removed key %s from the keyring", info.Fingerprint)

	result := &KeyRemoveResult{Key: info}
	if !configs.ProjectLockboxSettings.Initialized() {
		if err := configs.InitProjectSettings(); err != nil {
			opts.Logger.Debugf("No project to check membership in: %v", err)
		}
	}
	if settings := configs.ProjectLockboxSettings; settings.Initialized() {
		m, err := manifest.NewStore(settings.ManifestPath, settings.LockPath, 0).Load()
		if err != nil {
			opts.Logger.Warnf("Could not check project membership: %v", err)
			return result, nil
		}
		if mem, ok := registry.New(m).Lookup(info.Fingerprint); ok && mem.Active() {
			result.ActiveMember = true
		}
	}
	return result, nil
}

// keyManager returns the backend's key management, using the project's
// configuration when run inside a project.
func keyManager(b backend.Backend, log logger.Logger) (backend.KeyManager, error) {
	if b == nil {
		if err := configs.InitProjectSettings(); err != nil {
			return nil, fmt.Errorf("initializing project settings: %w", err)
		}
		settings := configs.ProjectLockboxSettings
		cfg, err := configs.LoadRuntimeConfig(settings.ConfigPath)
		if err != nil {
			return nil, err
		}
		log.Debugf("Keyring: %s", cfg.KeyringPath)
		if b, err = newBackend(cfg, settings.KeysPath); err != nil {
			return nil, err
		}
	}

	km, ok := b.(backend.KeyManager)
	if !ok {
		return nil, fmt.Errorf("%w: backend %s cannot manage keys", kerrors.ErrBackendUnavailable, b.Name())
	}
	return km, nil
}
