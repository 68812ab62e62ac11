package manifest

import (
	"errors"
	"fmt"
)

// Sentinel errors distinguishing the two ways load can fail (§4.1 Failure:
// "callers must distinguish these cases").
var (
	ErrNotFound = errors.New("manifest not found")
	ErrCorrupt  = errors.New("manifest unparseable")
)

// CorruptError wraps a JSON-parse failure with the path that failed to
// parse, mirroring the teacher's typed-error-over-sentinel pattern
// (pkg/config/errors.go ValidationError/LoadError).
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func newCorruptError(path string, err error) *CorruptError {
	return &CorruptError{Path: path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
}
