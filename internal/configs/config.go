package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

type ProjectConfig struct {
	Project  Project  `toml:"project"`
	Settings Settings `toml:"settings"`
}

type Project struct {
	UUID      string    `toml:"project_uuid"`
	Name      string    `toml:"name"`
	CreatedAt time.Time `toml:"created_at"`
}

// Settings holds the tunables a team commits alongside its secrets.
// Durations are Go duration strings such as "30s".
type Settings struct {
	Backend        string `toml:"backend"`
	Workers        int    `toml:"workers"`
	LockTimeout    string `toml:"lock_timeout"`
	BackendTimeout string `toml:"backend_timeout"`
	Retries        int    `toml:"retries"`
	RetryInterval  string `toml:"retry_interval"`
}

// DefaultSettings returns the settings written by init.
func DefaultSettings() Settings {
	return Settings{
		Backend:        DefaultBackend,
		Workers:        DefaultWorkers,
		LockTimeout:    DefaultLockTimeout.String(),
		BackendTimeout: DefaultBackendTimeout.String(),
		Retries:        DefaultRetries,
		RetryInterval:  DefaultRetryInterval.String(),
	}
}

// NewProjectConfig returns a config for a freshly initialised project.
func NewProjectConfig(name string) *ProjectConfig {
	return &ProjectConfig{
		Project: Project{
			UUID:      GenerateProjectUUID(),
			Name:      name,
			CreatedAt: time.Now().UTC(),
		},
		Settings: DefaultSettings(),
	}
}

// LoadProjectConfig loads the project configuration from the config file.
// Note: Caller should ensure InitProjectSettings is called before calling this function.
func LoadProjectConfig() (*ProjectConfig, error) {
	configPath := ProjectLockboxSettings.ConfigPath

	config := &ProjectConfig{Settings: DefaultSettings()}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	if err := LoadTOML(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}

	return config, nil
}

// SaveProjectConfig saves the project configuration to the config file.
// Note: Caller should ensure InitProjectSettings is called before calling this function.
func SaveProjectConfig(config *ProjectConfig) error {
	if err := SaveTOML(ProjectLockboxSettings.ConfigPath, config); err != nil {
		return fmt.Errorf("failed to save project config: %w", err)
	}

	return nil
}

// GenerateProjectUUID generates a new UUID for the project.
func GenerateProjectUUID() string {
	return uuid.New().String()
}
