package workflows

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/PolarWolf314/lockbox/internal/audit"
	"github.com/PolarWolf314/lockbox/internal/backend"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/registry"
	"github.com/PolarWolf314/lockbox/internal/utils"
)

// AddMemberOptions configures the add-member workflow.
type AddMemberOptions struct {
	// Fingerprint identifies the member's key. A long key ID is accepted
	// when the backend can resolve it to a full fingerprint.
	Fingerprint string

	// Name is a display name. Defaults to the key's user ID.
	Name string

	// KeyFile is an armored public key to import, or "-" for stdin.
	// Without it the key is exported from the caller's keyring.
	KeyFile string

	Backend backend.Backend
	Logger  logger.Logger
}

// AddMemberResult contains the outcome of an add-member operation.
type AddMemberResult struct {
	Member manifest.Member

	// RecipientVersion is the new live version.
	RecipientVersion int

	// StaleFiles is how many tracked files need re-encryption.
	StaleFiles int
}

// AddMember publishes a member's public key into .lockbox/keys/ and adds
// them to the registry. Tracked files stay encrypted for the previous
// recipient set until Reencrypt runs.
//
// Returns ErrInvalidFingerprint if the fingerprint is malformed.
// Returns ErrPublicKeyNotFound if the key cannot be found or parsed.
// Returns ErrDuplicateMember if the member is already active.
func AddMember(ctx context.Context, opts AddMemberOptions) (*AddMemberResult, error) {
	fp, err := registry.NormalizeFingerprint(opts.Fingerprint)
	if err != nil {
		return nil, err
	}

	p, err := openProject(opts.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}

	fp, name, err := publishMemberKey(ctx, p, fp, opts.Name, opts.KeyFile)
	if err != nil {
		return nil, err
	}

	var member manifest.Member
	m, err := p.store.Update(ctx, func(m *manifest.Manifest) error {
		reg := registry.New(m)
		if prev, ok := reg.Lookup(fp); ok && !prev.Active() {
			p.log.Infof("%s was revoked on %s; adding them again", fp, prev.RevokedAt.Format("2006-01-02"))
		}
		member, err = reg.AddMember(fp, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.log.Infof("Added %s (%s) at recipient version %d", member.Name, member.Fingerprint, m.RecipientVersion)

	entry := audit.LogWithUser(audit.OpAddMember)
	entry.Fingerprint = member.Fingerprint
	entry.MemberName = member.Name
	entry.RecipientVersion = m.RecipientVersion
	audit.Log(entry)

	return &AddMemberResult{
		Member:           member,
		RecipientVersion: m.RecipientVersion,
		StaleFiles:       len(m.ListStale()),
	}, nil
}

// publishMemberKey makes fp's public key available to the backend and
// returns the canonical fingerprint and display name.
func publishMemberKey(ctx context.Context, p *project, fp, name, keyFile string) (string, string, error) {
	b := p.crypto.Backend()
	pub, ok := b.(backend.KeyPublisher)
	if !ok {
		p.log.Debugf("Backend %s does not need public keys", b.Name())
		return fp, defaultName(name, fp), nil
	}

	var armored []byte
	switch exp, canExport := b.(backend.KeyExporter); {
	case keyFile == "-":
		data, err := utils.ReadStdin()
		if err != nil {
			return "", "", err
		}
		armored = data
	case keyFile != "":
		data, err := os.ReadFile(keyFile)
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, keyFile)
		}
		if err != nil {
			return "", "", fmt.Errorf("reading key file: %w", err)
		}
		armored = data
	case canExport:
		data, err := exp.ExportPublicKey(ctx, fp)
		if err != nil {
			return "", "", fmt.Errorf("%w (use --key-file to import it)", err)
		}
		armored = data
	default:
		return "", "", fmt.Errorf("%w: %s (use --key-file to import it)", kerrors.ErrPublicKeyNotFound, fp)
	}

	info, err := pub.PublishKey(ctx, fp, armored)
	if err != nil {
		return "", "", err
	}
	p.log.Debugf("Published key %s to %s", info.Fingerprint, p.settings.KeysPath)

	if info.Fingerprint != "" {
		fp = info.Fingerprint
	}
	if name == "" {
		name = info.Name
	}
	return fp, defaultName(name, fp), nil
}

func defaultName(name, fp string) string {
	if name != "" {
		return name
	}
	return fp
}

// RevokeMemberOptions configures the revoke-member workflow.
type RevokeMemberOptions struct {
	Fingerprint string

	// Reencrypt runs a full re-encryption after the revocation, so the
	// member loses access to the current ciphertext straight away.
	Reencrypt bool

	// Workers overrides the configured worker count for the re-encryption.
	Workers int

	// OnFile observes re-encryption progress.
	OnFile func(path string, err error)

	Backend backend.Backend
	Logger  logger.Logger
}

// RevokeMemberResult contains the outcome of a revoke-member operation.
type RevokeMemberResult struct {
	Member manifest.Member

	// AlreadyRevoked is true when the member had been revoked before; the
	// registry was left untouched.
	AlreadyRevoked bool

	RecipientVersion int

	// StaleFiles is how many tracked files still need re-encryption.
	StaleFiles int

	// Reencrypt is set when a re-encryption ran.
	Reencrypt *ReencryptResult
}

// RevokeMember revokes a member. The record is kept for audit history.
// Files already committed to git history stay readable to the member:
// only future ciphertext is protected.
//
// Returns ErrUnknownMember if the fingerprint was never a member.
// Returns ErrPartialReencryption if the follow-up re-encryption is incomplete.
func RevokeMember(ctx context.Context, opts RevokeMemberOptions) (*RevokeMemberResult, error) {
	fp, err := registry.NormalizeFingerprint(opts.Fingerprint)
	if err != nil {
		return nil, err
	}

	p, err := openProject(opts.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}

	var (
		member  manifest.Member
		revoked bool
	)
	m, err := p.store.Update(ctx, func(m *manifest.Manifest) error {
		member, revoked, err = registry.New(m).RevokeMember(fp)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &RevokeMemberResult{
		Member:           member,
		AlreadyRevoked:   !revoked,
		RecipientVersion: m.RecipientVersion,
		StaleFiles:       len(m.ListStale()),
	}

	if revoked {
		p.log.Infof("Revoked %s (%s) at recipient version %d", member.Name, member.Fingerprint, m.RecipientVersion)
		entry := audit.LogWithUser(audit.OpRevokeMember)
		entry.Fingerprint = member.Fingerprint
		entry.MemberName = member.Name
		entry.RecipientVersion = m.RecipientVersion
		audit.Log(entry)
	} else {
		p.log.Infof("%s was already revoked", member.Fingerprint)
	}

	if opts.Reencrypt && (result.StaleFiles > 0 || m.Dirty()) {
		res, err := reencryptProject(ctx, p, ReencryptOptions{Workers: opts.Workers, OnFile: opts.OnFile})
		if err != nil {
			return result, err
		}
		result.Reencrypt = res
		result.StaleFiles = 0
	}
	return result, nil
}

// MembersOptions configures the members workflow.
type MembersOptions struct {
	// IncludeRevoked lists revoked members as well.
	IncludeRevoked bool

	Logger logger.Logger
}

// MemberInfo is one row of the members listing.
type MemberInfo struct {
	manifest.Member

	// KeyPresent reports whether .lockbox/keys/ holds the member's public key.
	KeyPresent bool
}

// MembersResult contains the outcome of a members operation.
type MembersResult struct {
	Members          []MemberInfo
	RecipientVersion int
	Dirty            bool
}

// Members lists the registry in the order members were added.
func Members(ctx context.Context, opts MembersOptions) (*MembersResult, error) {
	p, err := openProject(nilBackend{}, opts.Logger)
	if err != nil {
		return nil, err
	}
	m, err := p.store.Load()
	if err != nil {
		return nil, err
	}

	reg := registry.New(m)
	result := &MembersResult{RecipientVersion: reg.Version(), Dirty: m.Dirty()}
	for _, mem := range reg.Members() {
		if !mem.Active() && !opts.IncludeRevoked {
			continue
		}
		_, err := os.Stat(filepath.Join(p.settings.KeysPath, mem.Fingerprint+".asc"))
		result.Members = append(result.Members, MemberInfo{Member: mem, KeyPresent: err == nil})
	}
	sort.SliceStable(result.Members, func(i, j int) bool {
		return result.Members[i].Active() && !result.Members[j].Active()
	})
	return result, nil
}

// nilBackend stands in for read-only workflows that never touch ciphertext,
// so they do not build a real backend.
type nilBackend struct{}

func (nilBackend) Name() string { return "none" }

func (nilBackend) Encrypt(context.Context, []byte, []string) ([]byte, error) {
	return nil, kerrors.ErrBackendUnavailable
}

func (nilBackend) Decrypt(context.Context, []byte) ([]byte, error) {
	return nil, kerrors.ErrBackendUnavailable
}
