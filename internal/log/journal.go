// Package log keeps a journal of the renames performed in each run so the
// most recent run can be reverted.
package log

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type OperationType string

const (
	OpRename OperationType = "rename"
)

type OperationLog struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Type       OperationType `json:"type"`
	SourcePath string        `json:"source_path"`
	DestPath   string        `json:"dest_path,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

type SessionMetadata struct {
	CommandArgs   []string  `json:"command_args"`
	WorkingDir    string    `json:"working_dir"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`
	SeriesID      int64     `json:"series_id,omitempty"`
	TotalOps      int       `json:"total_operations"`
	SuccessfulOps int       `json:"successful_operations"`
	FailedOps     int       `json:"failed_operations"`
}

type LogSession struct {
	Metadata   SessionMetadata `json:"metadata"`
	Operations []OperationLog  `json:"operations"`
}

// Journal records one session. A disabled journal accepts calls and writes
// nothing.
type Journal struct {
	mu      sync.Mutex
	dir     string
	enabled bool
	session *LogSession
	now     func() time.Time
}

// Open prepares a journal writing into dir and removes session files older
// than retentionDays.
func Open(dir string, enabled bool, retentionDays int) (*Journal, error) {
	j := &Journal{dir: dir, enabled: enabled, now: time.Now}
	if !enabled {
		return j, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if retentionDays > 0 {
		if err := cleanupOldLogs(dir, retentionDays, j.now()); err != nil {
			return j, err
		}
	}
	return j, nil
}

// StartSession begins recording.
func (j *Journal) StartSession(args []string, seriesID int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.enabled {
		return nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	j.session = &LogSession{
		Metadata: SessionMetadata{
			CommandArgs: append([]string(nil), args...),
			WorkingDir:  wd,
			Timestamp:   j.now(),
			SessionID:   uuid.NewString(),
			SeriesID:    seriesID,
		},
		Operations: []OperationLog{},
	}
	return nil
}

// Record logs a rename. It satisfies the rename package's journal contract.
func (j *Journal) Record(sourcePath, destPath string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.enabled || j.session == nil {
		return
	}

	op := OperationLog{
		ID:         fmt.Sprintf("%s_%d", j.session.Metadata.SessionID, len(j.session.Operations)),
		Timestamp:  j.now(),
		Type:       OpRename,
		SourcePath: sourcePath,
		DestPath:   destPath,
		Success:    err == nil,
	}
	if err != nil {
		op.Error = err.Error()
	}
	j.session.Operations = append(j.session.Operations, op)
}

// EndSession writes the session file. Sessions without operations are not
// written.
func (j *Journal) EndSession() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.enabled || j.session == nil {
		return "", nil
	}
	session := j.session
	j.session = nil
	if len(session.Operations) == 0 {
		return "", nil
	}

	updateStats(session)
	name := fmt.Sprintf("%s.%03d.json", session.Metadata.Timestamp.Format("2006-01-02_150405"), session.Metadata.Timestamp.Nanosecond()/1000000)
	path := filepath.Join(j.dir, name)
	if err := WriteSession(path, session); err != nil {
		return "", err
	}
	return path, nil
}

func updateStats(session *LogSession) {
	successful := 0
	for _, op := range session.Operations {
		if op.Success {
			successful++
		}
	}
	session.Metadata.TotalOps = len(session.Operations)
	session.Metadata.SuccessfulOps = successful
	session.Metadata.FailedOps = len(session.Operations) - successful
}

func WriteSession(path string, session *LogSession) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	return nil
}

func ReadSession(path string) (*LogSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var session LogSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// sessionFiles lists session files newest first.
func sessionFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// ErrNoSessions is returned when the journal holds no readable session.
var ErrNoSessions = errors.New("no sessions found")

// FindLatestSession returns the newest readable session in dir.
func FindLatestSession(dir string) (*LogSession, string, error) {
	files, err := sessionFiles(dir)
	if err != nil {
		return nil, "", err
	}
	for _, file := range files {
		session, err := ReadSession(file)
		if err != nil {
			// Skip corrupted files
			continue
		}
		return session, file, nil
	}
	return nil, "", fmt.Errorf("%w in %s", ErrNoSessions, dir)
}

func cleanupOldLogs(dir string, retentionDays int, now time.Time) error {
	files, err := sessionFiles(dir)
	if err != nil {
		return err
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	var failed []string
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				failed = append(failed, filepath.Base(file))
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to remove old log files: %s", strings.Join(failed, ", "))
	}
	return nil
}
