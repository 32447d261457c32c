package configs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/PolarWolf314/lockbox/internal/utils"
)

// DirName is the per-repository lockbox directory.
const DirName = ".lockbox"

// DefaultKeyringPath is used when LOCKBOX_KEYRING is unset.
const DefaultKeyringPath = "~/.lockbox/keyring"

type UserSettings struct {
	KeyringPath     string
	UserConfigsPath string
	Username        string
}

type ProjectSettings struct {
	ProjectName  string
	ProjectPath  string
	LockboxPath  string
	ConfigPath   string
	ManifestPath string
	LockPath     string
	ObjectsPath  string
	StagingPath  string
	KeysPath     string
	OplogPath    string
	AuditPath    string
}

var (
	UserLockboxSettings    *UserSettings
	ProjectLockboxSettings *ProjectSettings
)

func init() {
	keyring, err := ResolveKeyringPath(os.Getenv("LOCKBOX_KEYRING"))
	if err != nil {
		log.Fatalf("error resolving keyring directory: %s", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("error getting config directory: %s", err)
	}

	username, err := utils.GetUsername()
	if err != nil {
		log.Fatalf("error getting username: %s", err)
	}

	// This is independent of what repo you are in, so it is ok to init here
	UserLockboxSettings = &UserSettings{
		KeyringPath:     keyring,
		UserConfigsPath: filepath.Join(configDir, "lockbox"),
		Username:        username,
	}
	ProjectLockboxSettings = &ProjectSettings{}
}

// ResolveKeyringPath expands a keyring directory, falling back to DefaultKeyringPath.
func ResolveKeyringPath(dir string) (string, error) {
	if dir == "" {
		dir = DefaultKeyringPath
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", dir, err)
	}
	return filepath.Clean(expanded), nil
}

// NewProjectSettings derives every .lockbox path from the repository root.
func NewProjectSettings(root string) *ProjectSettings {
	if root == "" {
		return &ProjectSettings{}
	}
	dir := filepath.Join(root, DirName)
	return &ProjectSettings{
		ProjectName:  filepath.Base(root),
		ProjectPath:  root,
		LockboxPath:  dir,
		ConfigPath:   filepath.Join(dir, "config.toml"),
		ManifestPath: filepath.Join(dir, "manifest.toml"),
		LockPath:     filepath.Join(dir, "manifest.lock"),
		ObjectsPath:  filepath.Join(dir, "objects"),
		StagingPath:  filepath.Join(dir, "staging"),
		KeysPath:     filepath.Join(dir, "keys"),
		OplogPath:    filepath.Join(dir, "oplog.jsonl"),
		AuditPath:    filepath.Join(dir, "audit.jsonl"),
	}
}

// Initialized reports whether the settings point at an existing project.
func (s *ProjectSettings) Initialized() bool {
	return s != nil && s.ProjectPath != ""
}

// InitProjectSettings walks up from the working directory to the nearest
// .lockbox directory. It leaves ProjectLockboxSettings empty if none exists.
func InitProjectSettings() error {
	projectPath, err := utils.FindProjectLockboxRoot()
	if err != nil {
		return fmt.Errorf("error getting project root: %w", err)
	}

	ProjectLockboxSettings = NewProjectSettings(projectPath)
	return nil
}
