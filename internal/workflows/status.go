package workflows

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/PolarWolf314/lockbox/internal/configs"
	"github.com/PolarWolf314/lockbox/internal/gitfilter"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/secrets"
)

// FileState is the reconciliation state of a tracked file.
type FileState string

const (
	// StateCurrent means the file is encrypted for the live recipient set
	// and the working tree matches it.
	StateCurrent FileState = "current"
	// StateStale means the file is encrypted for an older recipient set.
	StateStale FileState = "stale"
	// StateModified means the working tree differs from the encrypted
	// content; the clean filter will re-encrypt it on the next git add.
	StateModified FileState = "modified"
	// StateMissing means the file is tracked but absent from the working tree.
	StateMissing FileState = "missing"
)

// FileStatusInfo holds the state of one tracked file.
type FileStatusInfo struct {
	Path             string    `json:"path"`
	State            FileState `json:"state"`
	RecipientVersion int       `json:"recipient_version"`
	EncryptedAt      time.Time `json:"encrypted_at"`
}

// StatusSummary holds counts of files by state.
type StatusSummary struct {
	Current  int `json:"current"`
	Stale    int `json:"stale"`
	Modified int `json:"modified"`
	Missing  int `json:"missing"`
}

// PendingInfo describes an interrupted re-encryption.
type PendingInfo struct {
	OperationID   string    `json:"operation_id"`
	TargetVersion int       `json:"target_version"`
	StartedAt     time.Time `json:"started_at"`
	Planned       int       `json:"planned"`
	Staged        int       `json:"staged"`
	Failed        []string  `json:"failed,omitempty"`
}

// StatusOptions configures the status workflow.
type StatusOptions struct {
	Logger logger.Logger
}

// StatusResult contains the outcome of a status operation.
type StatusResult struct {
	ProjectName       string           `json:"project"`
	RecipientVersion  int              `json:"recipient_version"`
	ReconciledVersion int              `json:"reconciled_version"`
	Dirty             bool             `json:"dirty"`
	ActiveMembers     int              `json:"active_members"`
	RevokedMembers    int              `json:"revoked_members"`
	Files             []FileStatusInfo `json:"files"`
	Summary           StatusSummary    `json:"summary"`
	Pending           *PendingInfo     `json:"pending,omitempty"`

	// Unfiltered are tracked paths with no lockbox line in .gitattributes.
	// git would commit them as plaintext.
	Unfiltered []string `json:"unfiltered,omitempty"`
}

// Status reports the registry version, every tracked file's state, and any
// interrupted re-encryption. It takes no lock and changes nothing.
//
// Returns ErrProjectNotInitialized if the project has no .lockbox directory.
// Returns a CorruptManifestError if the manifest fails validation.
func Status(ctx context.Context, opts StatusOptions) (*StatusResult, error) {
	p, err := openProject(nilBackend{}, opts.Logger)
	if err != nil {
		return nil, err
	}

	projectConfig, err := configs.LoadProjectConfig()
	if err != nil {
		return nil, err
	}
	projectName := projectConfig.Project.Name
	if projectName == "" {
		projectName = p.settings.ProjectName
	}

	m, err := p.store.Load()
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		ProjectName:       projectName,
		RecipientVersion:  m.RecipientVersion,
		ReconciledVersion: m.ReconciledVersion,
		Dirty:             m.Dirty(),
		Files:             []FileStatusInfo{},
	}
	for _, mem := range m.Members {
		if mem.Active() {
			result.ActiveMembers++
		} else {
			result.RevokedMembers++
		}
	}

	for _, path := range m.Paths() {
		tf := m.Files[path]
		state, err := fileState(p.settings.ProjectPath, path, tf.PlaintextDigest, tf.RecipientVersion < m.RecipientVersion)
		if err != nil {
			return nil, err
		}
		switch state {
		case StateCurrent:
			result.Summary.Current++
		case StateStale:
			result.Summary.Stale++
		case StateModified:
			result.Summary.Modified++
		case StateMissing:
			result.Summary.Missing++
		}
		result.Files = append(result.Files, FileStatusInfo{
			Path:             path,
			State:            state,
			RecipientVersion: tf.RecipientVersion,
			EncryptedAt:      tf.EncryptedAt,
		})
	}

	attributed, err := gitfilter.Attributed(p.settings.ProjectPath)
	if err != nil {
		return nil, err
	}
	routed := make(map[string]bool, len(attributed))
	for _, path := range attributed {
		routed[path] = true
	}
	for _, path := range m.Paths() {
		if !routed[path] {
			result.Unfiltered = append(result.Unfiltered, path)
		}
	}

	pending, err := p.oplog.Read()
	if err != nil {
		return nil, err
	}
	if pending != nil {
		info := &PendingInfo{
			OperationID:   pending.OperationID,
			TargetVersion: pending.TargetVersion,
			StartedAt:     pending.StartedAt,
			Planned:       len(pending.Planned),
			Staged:        len(pending.Staged),
		}
		for path := range pending.Failed {
			info.Failed = append(info.Failed, path)
		}
		sort.Strings(info.Failed)
		result.Pending = info
	}

	return result, nil
}

func fileState(root, path, plaintextDigest string, stale bool) (FileState, error) {
	if stale {
		return StateStale, nil
	}
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	if errors.Is(err, fs.ErrNotExist) {
		return StateMissing, nil
	}
	if err != nil {
		return "", err
	}
	if plaintextDigest != "" && secrets.Digest(data) != plaintextDigest {
		return StateModified, nil
	}
	return StateCurrent, nil
}
