package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PolarWolf314/lockbox/internal/audit"
	"github.com/PolarWolf314/lockbox/internal/backend"
	"github.com/PolarWolf314/lockbox/internal/configs"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/gitfilter"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/registry"
)

// localOnly lists the .lockbox entries that must never be committed.
const localOnly = `# Local lockbox state. Do not commit.
oplog.jsonl
staging/
manifest.lock
.*.tmp-*
`

// MemberSpec names a member to add at init time.
type MemberSpec struct {
	Fingerprint string
	Name        string
}

// ParseMemberSpec parses "FINGERPRINT[:NAME]".
func ParseMemberSpec(s string) (MemberSpec, error) {
	fp, name, _ := strings.Cut(s, ":")
	norm, err := registry.NormalizeFingerprint(fp)
	if err != nil {
		return MemberSpec{}, err
	}
	return MemberSpec{Fingerprint: norm, Name: strings.TrimSpace(name)}, nil
}

// InitOptions configures the init workflow.
type InitOptions struct {
	// ProjectName is the name for the project. If empty, uses the directory name.
	ProjectName string

	// Members are added as the first recipients, in order, as one registry
	// version. Their public keys are exported from the caller's keyring.
	Members []MemberSpec

	// FilterCommand is the executable git runs for the filter driver.
	// Defaults to DefaultFilterCommand.
	FilterCommand string

	// Backend overrides the configured crypto backend.
	Backend backend.Backend

	Logger logger.Logger
}

// InitResult contains the outcome of an init operation.
type InitResult struct {
	// ProjectName is the name of the initialized project.
	ProjectName string

	// ProjectUUID is the unique identifier assigned to the project.
	ProjectUUID string

	// ProjectPath is the git work tree root that now holds .lockbox/.
	ProjectPath string

	// Members are the members added at init.
	Members []manifest.Member

	// RecipientVersion is the live recipient version.
	RecipientVersion int
}

// Init creates .lockbox/ at the root of the git repository containing the
// working directory, writes the project config and an empty manifest, and
// installs the lockbox filter driver into the repository's git config.
//
// Returns ErrNotARepository if the working directory is not inside git.
// Returns ErrProjectAlreadyInitialized if .lockbox/ already exists.
// Returns ErrPublicKeyNotFound if a member's key is not in the keyring.
func Init(ctx context.Context, opts InitOptions) (*InitResult, error) {
	log := opts.Logger

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	root, err := configs.FindRepositoryRoot(wd)
	if err != nil {
		return nil, err
	}
	log.Debugf("Repository root: %s", root)

	settings := configs.NewProjectSettings(root)
	if _, err := os.Stat(settings.LockboxPath); err == nil {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrProjectAlreadyInitialized, settings.LockboxPath)
	}

	projectName := opts.ProjectName
	if projectName == "" {
		projectName = settings.ProjectName
	}

	originalSettings := configs.ProjectLockboxSettings
	configs.ProjectLockboxSettings = settings
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = os.RemoveAll(settings.LockboxPath)
			configs.ProjectLockboxSettings = originalSettings
		}
	}()

	for _, dir := range []string{settings.LockboxPath, settings.ObjectsPath, settings.KeysPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	// #nosec G306 -- committed with the repository.
	if err := os.WriteFile(filepath.Join(settings.LockboxPath, ".gitignore"), []byte(localOnly), 0644); err != nil {
		return nil, fmt.Errorf("writing .lockbox/.gitignore: %w", err)
	}

	projectConfig := configs.NewProjectConfig(projectName)
	if err := configs.SaveProjectConfig(projectConfig); err != nil {
		return nil, fmt.Errorf("saving project config: %w", err)
	}

	p, err := newProject(settings, opts.Backend, log)
	if err != nil {
		return nil, err
	}

	m := manifest.New()
	reg := registry.New(m)
	var members []manifest.Member
	for _, spec := range opts.Members {
		fp, name, err := publishMemberKey(ctx, p, spec.Fingerprint, spec.Name, "")
		if err != nil {
			return nil, err
		}
		member, err := reg.AddMember(fp, name)
		if err != nil {
			return nil, err
		}
		log.Infof("Added member %s (%s)", member.Name, member.Fingerprint)
		members = append(members, member)
	}
	// Nothing is tracked yet, so the file set is trivially reconciled.
	m.ReconciledVersion = m.RecipientVersion

	if err := p.store.Create(ctx, m); err != nil {
		return nil, err
	}

	command := opts.FilterCommand
	if command == "" {
		command = DefaultFilterCommand
	}
	if err := gitfilter.Install(root, command); err != nil {
		return nil, fmt.Errorf("installing git filter: %w", err)
	}
	cleanupNeeded = false

	entry := audit.LogWithUser(audit.OpInit)
	entry.ProjectName = projectName
	entry.ProjectUUID = projectConfig.Project.UUID
	entry.RecipientVersion = m.RecipientVersion
	audit.Log(entry)

	return &InitResult{
		ProjectName:      projectName,
		ProjectUUID:      projectConfig.Project.UUID,
		ProjectPath:      root,
		Members:          members,
		RecipientVersion: m.RecipientVersion,
	}, nil
}
