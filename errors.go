package pagecache

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors for the engine's lookup and configuration error
// kinds. Check these with errors.Is, following the same
// package-level-var idiom the teacher uses for its own sentinels
// (catfs/errors.go's ErrExists, ErrBadNode, ...).
var (
	ErrNoSuchHandle   = errors.New("pagecache: no such handle")
	ErrAlreadyOpen    = errors.New("pagecache: source already open")
	ErrInvalidOffset  = errors.New("pagecache: invalid offset")
	ErrInvalidMode    = errors.New("pagecache: invalid mode")
	ErrEmptyPath      = errors.New("pagecache: path must not be empty")
	ErrCacheExhausted = errors.New("pagecache: no evictable victim; pool exhausted")
	ErrEofReached     = errors.New("pagecache: eof reached")
)

// SourceOp names the data-source operation a SourceError occurred in.
type SourceOp string

const (
	OpOpen   SourceOp = "open"
	OpRead   SourceOp = "read"
	OpWrite  SourceOp = "write"
	OpSize   SourceOp = "size"
	OpClose  SourceOp = "close"
	OpReopen SourceOp = "reopen"
)

// SourceError reports a failure of the underlying data source, mirroring
// the teacher's concrete-error-with-context idiom (catfs/errors.go's
// errNoSuchFile). It wraps the driver's own error with
// github.com/pkg/errors so a %+v format still carries the original
// stack trace.
type SourceError struct {
	Op   SourceOp
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("pagecache: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// wrapSourceErr builds a SourceError with a stack-carrying cause.
func wrapSourceErr(op SourceOp, path string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Op: op, Path: path, Err: pkgerrors.WithStack(err)}
}

// WrapSourceError builds a SourceError with a stack-carrying cause, for
// use by Source implementations living outside this package (e.g. the
// demo façade's file-backed source) that want the same context-carrying
// shape the engine itself produces for its own I/O boundaries.
func WrapSourceError(op SourceOp, path string, err error) error {
	return wrapSourceErr(op, path, err)
}

// IsSourceError reports whether err is (or wraps) a SourceError with
// the given op.
func IsSourceError(err error, op SourceOp) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Op == op
	}
	return false
}
