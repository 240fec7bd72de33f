package errors

import (
	"fmt"
	"strings"
)

// Kind classifies failures of the package core.
type Kind int

const (
	// KindIO covers open, read, write and rename failures.
	KindIO Kind = iota + 1
	// KindParse covers malformed binaries, digest lines and manifests.
	KindParse
	// KindIntegrity covers missing or bad signatures, ABI mismatches and corrupted catalogs.
	KindIntegrity
	// KindPermission covers insufficient privilege to write a catalog.
	KindPermission
	// KindNotFound covers unresolvable packages and dependencies.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindParse:
		return "parse error"
	case KindIntegrity:
		return "integrity error"
	case KindPermission:
		return "permission error"
	case KindNotFound:
		return "not found"
	default:
		return "unknown error"
	}
}

// Kind sentinels, usable as errors.Is targets.
var (
	ErrIO         = &Error{Kind: KindIO}
	ErrParse      = &Error{Kind: KindParse}
	ErrIntegrity  = &Error{Kind: KindIntegrity}
	ErrPermission = &Error{Kind: KindPermission}
	ErrNotFound   = &Error{Kind: KindNotFound}
)

// Error is a classified error carrying the operation and the path or origin involved.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the kind sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// IO returns a KindIO error.
func IO(op, path string, err error) error {
	return newError(KindIO, op, path, err)
}

// Parse returns a KindParse error.
func Parse(op, path string, err error) error {
	return newError(KindParse, op, path, err)
}

// Integrity returns a KindIntegrity error.
func Integrity(op, path string, err error) error {
	return newError(KindIntegrity, op, path, err)
}

// Permission returns a KindPermission error.
func Permission(op, path string, err error) error {
	return newError(KindPermission, op, path, err)
}

// NotFound returns a KindNotFound error.
func NotFound(op, name string, err error) error {
	return newError(KindNotFound, op, name, err)
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
