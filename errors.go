package refsync

import (
	"errors"
	"fmt"
)

// ErrorCode classifies synchronization failures.
type ErrorCode string

const (
	// CodeLoadFailed means one library's collection failed. The library
	// contributes no declarations; the pass continues.
	CodeLoadFailed ErrorCode = "LOAD_FAILED"
	// CodeIdentityTransient means a project's stable identity could not be
	// read, e.g. it has never been saved.
	CodeIdentityTransient ErrorCode = "IDENTITY_TRANSIENT"
	// CodeConsistencyFault means engine bookkeeping disagreed with itself.
	// The affected operation is skipped.
	CodeConsistencyFault ErrorCode = "CONSISTENCY_FAULT"
	// CodeCancelled means the pass stopped at a cancellation point.
	CodeCancelled ErrorCode = "CANCELLED"
)

var (
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("refsync: engine closed")
	// ErrUnsavedProject is returned by Project.FileName for a project
	// that has no path yet.
	ErrUnsavedProject = errors.New("project has not been saved")
)

// SyncError is a coded synchronization error.
type SyncError struct {
	Code      ErrorCode
	Identity  string
	Reference string
	Message   string
	cause     error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Identity != "" {
		msg += fmt.Sprintf(" (library %s)", e.Identity)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.cause
}

func newSyncError(code ErrorCode, identity string, ref Reference, msg string, cause error) *SyncError {
	return &SyncError{Code: code, Identity: identity, Reference: ref.Name, Message: msg, cause: cause}
}

func hasCode(err error, code ErrorCode) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == code
}

// IsLoadError reports whether err is a library load failure.
func IsLoadError(err error) bool { return hasCode(err, CodeLoadFailed) }

// IsConsistencyFault reports whether err is a bookkeeping fault.
func IsConsistencyFault(err error) bool { return hasCode(err, CodeConsistencyFault) }

// IsCancelled reports whether err came from a cancelled pass.
func IsCancelled(err error) bool { return hasCode(err, CodeCancelled) }

// IsIdentityTransient reports whether err is a transient identity lookup
// failure.
func IsIdentityTransient(err error) bool { return hasCode(err, CodeIdentityTransient) }
