package workflows

import (
	"fmt"

	"github.com/PolarWolf314/lockbox/internal/backend"
	"github.com/PolarWolf314/lockbox/internal/backend/openpgp"
	"github.com/PolarWolf314/lockbox/internal/configs"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/oplog"
	"github.com/PolarWolf314/lockbox/internal/secrets"
)

// DefaultFilterCommand is how git invokes lockbox from the filter driver.
const DefaultFilterCommand = "lockbox"

// project bundles everything a workflow needs for one repository.
type project struct {
	settings *configs.ProjectSettings
	config   *configs.RuntimeConfig
	store    *manifest.Store
	objects  *secrets.ObjectStore
	staging  *secrets.Staging
	oplog    *oplog.Log
	crypto   *backend.Adapter
	log      logger.Logger
}

// openProject locates the project from the working directory.
func openProject(b backend.Backend, log logger.Logger) (*project, error) {
	if err := configs.InitProjectSettings(); err != nil {
		return nil, fmt.Errorf("initializing project settings: %w", err)
	}
	settings := configs.ProjectLockboxSettings
	if !settings.Initialized() {
		return nil, kerrors.ErrProjectNotInitialized
	}
	return newProject(settings, b, log)
}

func newProject(settings *configs.ProjectSettings, b backend.Backend, log logger.Logger) (*project, error) {
	cfg, err := configs.LoadRuntimeConfig(settings.ConfigPath)
	if err != nil {
		return nil, err
	}
	log.Debugf("Runtime config: backend=%s workers=%d lock_timeout=%s backend_timeout=%s retries=%d",
		cfg.Backend, cfg.Workers, cfg.LockTimeout, cfg.BackendTimeout, cfg.Retries)

	if b == nil {
		if b, err = newBackend(cfg, settings.KeysPath); err != nil {
			return nil, err
		}
	}

	return &project{
		settings: settings,
		config:   cfg,
		store:    manifest.NewStore(settings.ManifestPath, settings.LockPath, cfg.LockTimeout),
		objects:  secrets.NewObjectStore(settings.ObjectsPath),
		staging:  secrets.NewStaging(settings.StagingPath),
		oplog:    oplog.New(settings.OplogPath),
		crypto: backend.NewAdapter(b, backend.Options{
			Timeout:       cfg.BackendTimeout,
			Retries:       cfg.Retries,
			RetryInterval: cfg.RetryInterval,
			Log:           log,
		}),
		log: log,
	}, nil
}

// newBackend builds the backend named in cfg. keysDir may be empty for
// commands that run outside a project.
func newBackend(cfg *configs.RuntimeConfig, keysDir string) (backend.Backend, error) {
	switch cfg.Backend {
	case "openpgp":
		return openpgp.New(openpgp.Options{
			KeysDir:    keysDir,
			KeyringDir: cfg.KeyringPath,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", kerrors.ErrInvalidProjectConfig, cfg.Backend)
	}
}

// normalizePath turns a user or git supplied path into a manifest key.
func (p *project) normalizePath(path string) (string, error) {
	return secrets.NormalizePath(p.settings.ProjectPath, path)
}
