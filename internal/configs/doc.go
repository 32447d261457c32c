// Package configs manages project configuration and paths for lockbox.
//
// # Project Configuration
//
// Each repository stores committed settings in TOML format at
// .lockbox/config.toml:
//
//	[project]
//	project_uuid = "..."
//	name = "payments"
//
//	[settings]
//	backend = "openpgp"
//	workers = 4
//	lock_timeout = "10s"
//	backend_timeout = "30s"
//	retries = 3
//	retry_interval = "250ms"
//
// LoadRuntimeConfig layers built-in defaults, the project file, and the
// LOCKBOX_* environment variables (in increasing precedence) into a
// RuntimeConfig.
//
// # Settings
//
// Global settings are initialized at startup:
//   - UserLockboxSettings: keyring directory (LOCKBOX_KEYRING, default
//     ~/.lockbox/keyring) and username
//   - ProjectLockboxSettings: the current repository's .lockbox paths
//
// Call InitProjectSettings() before accessing ProjectLockboxSettings.
// It walks up the directory tree to find the nearest .lockbox directory.
//
// # Repositories
//
// OpenRepository and FindRepositoryRoot locate the enclosing git
// repository. GitUserEmail reads user.email for audit entries.
package configs
