package models

import "fmt"

// ValidationError rejects a blob before it reaches storage.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// StorageError reports a failed local durable-store operation. These are
// always surfaced to the caller: losing local durability is unrecoverable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UploadError reports a failed remote storage operation. It is recorded in
// the sync status ledger and reported to the task's failure callback, but
// never blocks other queued uploads.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
	return fmt.Sprintf("upload of %s failed: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// CompilationError reports a failed compilation job: empty input, a clip
// that cannot be decoded, or a job timeout. Partial output is discarded.
type CompilationError struct {
	Reason string
	Err    error
}

func (e *CompilationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("compilation failed: %s", e.Reason)
	}
	return fmt.Sprintf("compilation failed: %s: %v", e.Reason, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }
