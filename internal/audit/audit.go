package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/PolarWolf314/lockbox/internal/configs"
)

// Operation names recorded in the audit log.
const (
	OpInit         = "init"
	OpAddMember    = "add-member"
	OpRevokeMember = "revoke-member"
	OpTrack        = "track"
	OpUntrack      = "untrack"
	OpReencrypt    = "reencrypt"
	OpFilterClean  = "filter-clean"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp string `json:"ts"`   // RFC3339 with microseconds.
	User      string `json:"user"` // Git user.email, or the OS username.
	Operation string `json:"op"`   // Operation name.

	// Optional fields depending on operation.
	Files            []string `json:"files,omitempty"`             // For track/untrack/reencrypt.
	Fingerprint      string   `json:"fingerprint,omitempty"`       // For add-member/revoke-member.
	MemberName       string   `json:"member_name,omitempty"`       // For add-member.
	RecipientVersion int      `json:"recipient_version,omitempty"` // Live version after the operation.
	FilesCount       int      `json:"files_count,omitempty"`       // For reencrypt.
	OperationID      string   `json:"operation_id,omitempty"`      // For reencrypt.
	ProjectName      string   `json:"project_name,omitempty"`      // For init.
	ProjectUUID      string   `json:"project_uuid,omitempty"`      // For init.
}

// Log appends an entry to the audit log.
// If logging fails, it does not return an error.
// Operations should not fail just because audit logging failed.
func Log(entry Entry) {
	// Set timestamp if not already set.
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	logPath := LogPath()
	if logPath == "" {
		// Project not initialized, skip logging.
		return
	}

	// #nosec G306 -- audit log should be readable by team members.
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// LogWithUser returns an entry for op with the acting user filled in.
func LogWithUser(op string) Entry {
	return Entry{Operation: op, User: Actor()}
}

// Actor identifies who is running the command: the repository's git
// user.email, falling back to the OS username.
func Actor() string {
	if settings := configs.ProjectLockboxSettings; settings.Initialized() {
		if email := configs.GitUserEmail(settings.ProjectPath); email != "" {
			return email
		}
	}
	if configs.UserLockboxSettings != nil {
		return configs.UserLockboxSettings.Username
	}
	return ""
}

// LogPath returns the path to the audit log file.
// Returns empty string if project is not initialized.
func LogPath() string {
	settings := configs.ProjectLockboxSettings
	if !settings.Initialized() {
		return ""
	}
	return settings.AuditPath
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func ReadEntries() ([]Entry, error) {
	logPath := LogPath()
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
