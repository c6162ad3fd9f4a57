// Package status persists per-destination backup outcomes across runs. One
// status file exists per backup configuration; every save rewrites the full
// snapshot, so a result left at not_finished is durable evidence of an
// attempt that died mid-flight.
package status

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Result values recorded for a destination's last backup attempt.
const (
	ResultNotFinished = "not_finished"
	ResultSucceeded   = "succeeded"
	ResultFailed      = "failed"
)

const fileExt = ".bstat"

// DestinationStatus is the outcome record for one destination. Zero
// timestamps mean "never".
type DestinationStatus struct {
	DestinationName          string    `yaml:"destination_name"`
	LastBackupResult         string    `yaml:"last_backup_result"`
	LastSuccessfulBackupTime time.Time `yaml:"last_successful_backup_time,omitempty"`
	LastBackupAttemptTime    time.Time `yaml:"last_backup_attempt_time,omitempty"`
}

// BackupStatus aggregates destination statuses for one backup configuration.
type BackupStatus struct {
	DestinationStatuses map[string]*DestinationStatus `yaml:"destination_statuses"`

	dir  string
	name string
}

// Load reads the status file for the named configuration from dir. A missing
// file yields an empty status, not an error.
func Load(dir, name string) (*BackupStatus, error) {
	s := &BackupStatus{
		DestinationStatuses: make(map[string]*DestinationStatus),
		dir:                 dir,
		name:                name,
	}

	data, err := os.ReadFile(s.FilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read status file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse status file %s: %w", s.FilePath(), err)
	}
	if s.DestinationStatuses == nil {
		s.DestinationStatuses = make(map[string]*DestinationStatus)
	}

	return s, nil
}

// FilePath returns the status file location.
func (s *BackupStatus) FilePath() string {
	return filepath.Join(s.dir, s.name+fileExt)
}

// GetOrCreate returns the status record for the destination, creating an
// empty one on first reference. Records are never deleted automatically.
func (s *BackupStatus) GetOrCreate(destinationName string) *DestinationStatus {
	ds, ok := s.DestinationStatuses[destinationName]
	if !ok {
		ds = &DestinationStatus{DestinationName: destinationName}
		s.DestinationStatuses[destinationName] = ds
	}
	return ds
}

// Save rewrites the full status snapshot. The write goes to a temp file in
// the same directory followed by a rename, so readers never observe a torn
// file.
func (s *BackupStatus) Save() error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp := s.FilePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	if err := os.Rename(tmp, s.FilePath()); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}

	return nil
}
