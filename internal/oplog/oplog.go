// Package oplog records the progress of an in-flight re-encryption so an
// interrupted run can be resumed or rolled back.
//
// The log is JSON Lines at .lockbox/oplog.jsonl. A run writes one begin
// record (replacing any previous log), then one staged or failed record
// per file, each synced before the next file is reported. The log is
// purged once the manifest commit lands. Torn or malformed lines are
// skipped on read, so a crash mid-append loses at most that one record.
package oplog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/PolarWolf314/lockbox/internal/utils"
)

// Kind identifies a record type.
type Kind string

const (
	KindBegin  Kind = "begin"
	KindStaged Kind = "staged"
	KindFailed Kind = "failed"
)

// PlannedFile is one entry of the work list captured at planning time.
type PlannedFile struct {
	Path          string `json:"path"`
	SourceDigest  string `json:"source_digest"`
	SourceVersion int    `json:"source_version"`
}

// Record is a single log line.
type Record struct {
	Kind            Kind          `json:"kind"`
	OperationID     string        `json:"op"`
	Timestamp       time.Time     `json:"ts"`
	TargetVersion   int           `json:"target_version,omitempty"`
	Planned         []PlannedFile `json:"planned,omitempty"`
	Path            string        `json:"path,omitempty"`
	Digest          string        `json:"digest,omitempty"`
	PlaintextDigest string        `json:"plaintext_digest,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Pending is the reconstructed state of an incomplete operation.
type Pending struct {
	OperationID   string
	TargetVersion int
	StartedAt     time.Time
	Planned       []PlannedFile
	Staged        map[string]Record
	Failed        map[string]string
}

// Log appends records for one repository. Methods are safe for concurrent use.
type Log struct {
	Path string
	mu   sync.Mutex
}

// New returns the log at path.
func New(path string) *Log {
	return &Log{Path: path}
}

// Begin starts a new operation, discarding any previous log content.
func (l *Log) Begin(opID string, target int, planned []PlannedFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(Record{
		Kind:          KindBegin,
		OperationID:   opID,
		Timestamp:     time.Now().UTC(),
		TargetVersion: target,
		Planned:       planned,
	})
	if err != nil {
		return fmt.Errorf("failed to encode begin record: %w", err)
	}
	return utils.WriteFileAtomic(l.Path, append(data, '\n'), 0600)
}

// Staged records that path was re-encrypted into the blob digest.
func (l *Log) Staged(opID, path, digest, plaintextDigest string) error {
	return l.append(Record{
		Kind:            KindStaged,
		OperationID:     opID,
		Path:            path,
		Digest:          digest,
		PlaintextDigest: plaintextDigest,
	})
}

// Failed records that path could not be re-encrypted.
func (l *Log) Failed(opID, path string, cause error) error {
	return l.append(Record{
		Kind:        KindFailed,
		OperationID: opID,
		Path:        path,
		Error:       cause.Error(),
	})
}

func (l *Log) append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r.Timestamp = time.Now().UTC()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", r.Kind, err)
	}

	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open operation log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to operation log: %w", err)
	}
	return f.Sync()
}

// Read reconstructs the pending operation. It returns nil when there is no
// log or the log holds no begin record.
func (l *Log) Read() (*Pending, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read operation log: %w", err)
	}
	return Parse(data), nil
}

// Parse rebuilds a Pending from JSON Lines data. Records that belong to a
// different operation than the first begin record are ignored.
func Parse(data []byte) *Pending {
	var p *Pending
	start := 0
	for i := 0; i <= len(data); i++ {
		if i != len(data) && data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}

		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}

		switch {
		case r.Kind == KindBegin && p == nil:
			p = &Pending{
				OperationID:   r.OperationID,
				TargetVersion: r.TargetVersion,
				StartedAt:     r.Timestamp,
				Planned:       r.Planned,
				Staged:        make(map[string]Record),
				Failed:        make(map[string]string),
			}
		case p == nil || r.OperationID != p.OperationID:
		case r.Kind == KindStaged:
			p.Staged[r.Path] = r
			delete(p.Failed, r.Path)
		case r.Kind == KindFailed:
			p.Failed[r.Path] = r.Error
		}
	}
	return p
}

// Purge removes the log.
func (l *Log) Purge() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to purge operation log: %w", err)
	}
	return nil
}
