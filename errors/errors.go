package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister  Phase = "register"  // dictionary registration
	PhaseResolve   Phase = "resolve"   // handle and member resolution
	PhasePack      Phase = "pack"      // native to packed
	PhaseUnpack    Phase = "unpack"    // packed to native
	PhaseSwap      Phase = "swap"      // in-place byte order conversion
	PhaseIdentify  Phase = "identify"  // derived type identification
	PhaseCalibrate Phase = "calibrate" // calibrator evaluation
	PhaseBuild     Phase = "build"     // dictionary construction
	PhaseImport    Phase = "import"    // snapshot loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidAppIndex    Kind = "invalid_app_index"
	KindInvalidFormatIndex Kind = "invalid_format_index"
	KindInvalidHandle      Kind = "invalid_handle"
	KindNameNotFound       Kind = "name_not_found"
	KindSizeMismatch       Kind = "size_mismatch"
	KindChecksumMismatch   Kind = "checksum_mismatch"
	KindTypeMismatch       Kind = "type_mismatch"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindInvalidData        Kind = "invalid_data"
	KindUnsupported        Kind = "unsupported"
	KindOverflow           Kind = "overflow"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindRegistration       Kind = "registration"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	EdsType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.EdsType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.EdsType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", EDS type ")
			b.WriteString(e.EdsType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("EDS type ")
			b.WriteString(e.EdsType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.EdsType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether any error in the chain is an *Error of the given
// kind, regardless of phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsChecksumMismatch reports whether err carries a checksum_mismatch
// condition. A mismatch reported by the unpack engine is recoverable: the
// decode has still completed.
func IsChecksumMismatch(err error) bool { return IsKind(err, KindChecksumMismatch) }

// IsSizeMismatch reports whether err carries a size_mismatch condition.
func IsSizeMismatch(err error) bool { return IsKind(err, KindSizeMismatch) }

// IsNameNotFound reports whether err carries a name_not_found condition.
func IsNameNotFound(err error) bool { return IsKind(err, KindNameNotFound) }

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the entity path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// EdsType sets the EDS type name
func (b *Builder) EdsType(t string) *Builder {
	b.err.EdsType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidAppIndex creates an error for an app index outside the registry
// slot range or naming an empty slot
func InvalidAppIndex(phase Phase, app int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidAppIndex,
		Detail: fmt.Sprintf("app index %d not registered", app),
		Value:  app,
	}
}

// InvalidFormatIndex creates an error for a format index outside a
// registered dictionary
func InvalidFormatIndex(phase Phase, app, format int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidFormatIndex,
		Detail: fmt.Sprintf("format index %d not present in app %d", format, app),
		Value:  format,
	}
}

// InvalidHandle creates an error for a handle whose referent cannot support
// the requested operation, or for malformed dictionary content discovered
// while following one
func InvalidHandle(phase Phase, handle, detail string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindInvalidHandle,
		EdsType: handle,
		Detail:  detail,
	}
}

// NameNotFound creates an error for a member name lookup miss
func NameNotFound(phase Phase, path []string, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNameNotFound,
		Path:   path,
		Detail: fmt.Sprintf("no member named %q", name),
	}
}

// SizeMismatch creates an error for a buffer too small for the operation.
// Unit is "bits" or "bytes" depending on which side of the conversion ran
// short.
func SizeMismatch(phase Phase, path []string, need, got int, unit string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSizeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("need %d %s, have %d", need, unit, got),
		Value:  got,
	}
}

// ChecksumMismatch creates an error for a stored digest that does not match
// the recomputed value
func ChecksumMismatch(phase Phase, path []string, want, got uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindChecksumMismatch,
		Path:   path,
		Detail: fmt.Sprintf("computed %#x, stored %#x", got, want),
		Value:  got,
	}
}

// TypeMismatch creates a type mismatch error between a Go binding and an
// EDS type entry
func TypeMismatch(phase Phase, path []string, goType, edsType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		EdsType: edsType,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindOverflow,
		Path:    path,
		EdsType: targetType,
		Detail:  fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:   value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistration,
		Detail: detail,
		Cause:  cause,
	}
}

// Import creates a snapshot loading error
func Import(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseImport,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
