package log

import (
	"errors"
	"fmt"
	"os"
)

type UndoResult struct {
	Operation OperationLog
	Success   bool
	Error     error
}

func UndoOperation(op OperationLog) UndoResult {
	result := UndoResult{Operation: op}

	if op.Type != OpRename {
		result.Error = fmt.Errorf("unknown operation type: %s", op.Type)
		return result
	}
	if op.DestPath == "" {
		result.Error = errors.New("cannot undo rename: destination path missing")
		return result
	}
	if _, err := os.Stat(op.DestPath); os.IsNotExist(err) {
		result.Error = fmt.Errorf("cannot undo rename: file %s not found", op.DestPath)
		return result
	}
	// never overwrite something that took the original name since
	if _, err := os.Stat(op.SourcePath); err == nil {
		result.Error = fmt.Errorf("cannot undo rename: original path %s already exists", op.SourcePath)
		return result
	}
	if err := os.Rename(op.DestPath, op.SourcePath); err != nil {
		result.Error = fmt.Errorf("failed to rename %s back to %s: %w", op.DestPath, op.SourcePath, err)
		return result
	}

	result.Success = true
	return result
}

// UndoSession reverts the successful operations of a session, newest first.
func UndoSession(session *LogSession) []UndoResult {
	var results []UndoResult
	for i := len(session.Operations) - 1; i >= 0; i-- {
		op := session.Operations[i]
		if !op.Success {
			continue
		}
		results = append(results, UndoOperation(op))
	}
	return results
}

// UndoLatest reverts the newest session in dir. When every operation is
// reverted the session file is removed, so the next call reaches the session
// before it.
func UndoLatest(dir string) (*LogSession, []UndoResult, error) {
	session, path, err := FindLatestSession(dir)
	if err != nil {
		return nil, nil, err
	}

	results := UndoSession(session)
	for _, r := range results {
		if !r.Success {
			return session, results, nil
		}
	}
	if err := os.Remove(path); err != nil {
		return session, results, fmt.Errorf("failed to retire session file: %w", err)
	}
	return session, results, nil
}
