package docxfill

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"syscall"

	docxml "github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/xml"
)

// Kind classifies an Error.
type Kind int

const (
	noKind Kind = iota
	PackageCorrupt
	UnsupportedPart
	InvalidPattern
	UnmappedPlaceholder
	FileNotFound
	FileAccessDenied
	Timeout
	Cancelled
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case PackageCorrupt:
		return "package corrupt"
	case UnsupportedPart:
		return "unsupported part"
	case InvalidPattern:
		return "invalid pattern"
	case UnmappedPlaceholder:
		return "unmapped placeholder"
	case FileNotFound:
		return "file not found"
	case FileAccessDenied:
		return "file access denied"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case Unexpected:
		return "unexpected"
	default:
		return "none"
	}
}

// AccessKind says which file operation was denied.
type AccessKind int

const (
	AccessNone AccessKind = iota
	AccessRead
	AccessWrite
	AccessCreate
	AccessDelete
)

func (a AccessKind) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessCreate:
		return "create"
	case AccessDelete:
		return "delete"
	default:
		return ""
	}
}

// Error is the error type returned by the engine.
type Error struct {
	Kind Kind
	// Op is the operation context, e.g. "file reading" or "replacement validation".
	Op     string
	Path   string
	Access AccessKind
	// Critical errors (resource exhaustion, recovered panics) halt a batch.
	Critical bool
	Err      error
}

func (e *Error) Error() string {
	kind := e.Kind.String()
	if e.Kind == FileAccessDenied && e.Access != AccessNone {
		kind = fmt.Sprintf("%s (%s)", kind, e.Access)
	}

	var sb strings.Builder
	sb.WriteString(kind)
	if e.Op != "" {
		sb.WriteString(" during ")
		sb.WriteString(e.Op)
	}
	if e.Path != "" {
		fmt.Fprintf(&sb, " of '%s'", e.Path)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// KindOf returns the kind of the first Error in err's chain. Errors that are not
// classified report Unexpected; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return noKind
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCritical reports whether err should halt a batch.
func IsCritical(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Critical
}

// classify turns err into an *Error carrying op and path. Errors that are already
// classified keep their kind and only gain missing context.
func classify(op, path string, access AccessKind, err error) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		e := *existing
		if e.Op == "" {
			e.Op = op
		}
		if e.Path == "" {
			e.Path = path
		}
		return &e
	}

	e := &Error{Op: op, Path: path, Err: err}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = Timeout
	case errors.Is(err, context.Canceled):
		e.Kind = Cancelled
	case errors.Is(err, docxml.ErrCorrupt):
		e.Kind = PackageCorrupt
	case errors.Is(err, docxml.ErrUnsupportedPart):
		e.Kind = UnsupportedPart
	case errors.Is(err, fs.ErrNotExist):
		e.Kind = FileNotFound
	case errors.Is(err, fs.ErrPermission):
		e.Kind = FileAccessDenied
		e.Access = access
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.ENOMEM), errors.Is(err, syscall.EMFILE):
		e.Kind = Unexpected
		e.Critical = true
	default:
		e.Kind = Unexpected
	}
	return e
}

// ValidationIssue represents a single configuration problem
type ValidationIssue struct {
	Field   string
	Message string
}

// ValidationError represents multiple validation issues
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation error"
	}

	if len(e.Issues) == 1 {
		return fmt.Sprintf("validation error: %s - %s", e.Issues[0].Field, e.Issues[0].Message)
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d validation issues:", len(e.Issues)))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("  %s: %s", issue.Field, issue.Message))
	}
	return strings.Join(parts, "\n")
}

// MultiError collects multiple errors
type MultiError struct {
	errors []error
}

// NewMultiError creates a new multi-error collector
func NewMultiError() *MultiError {
	return &MultiError{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collection (ignores nil errors)
func (m *MultiError) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of errors
func (m *MultiError) Len() int {
	return len(m.errors)
}

// Errors returns the collected errors in the order they were added.
func (m *MultiError) Errors() []error {
	return append([]error(nil), m.errors...)
}

// Err returns the multi-error or nil if empty
func (m *MultiError) Err() error {
	if len(m.errors) == 0 {
		return nil
	}
	if len(m.errors) == 1 {
		return m.errors[0]
	}
	return m
}

func (m *MultiError) Error() string {
	if len(m.errors) == 0 {
		return "no errors"
	}

	if len(m.errors) == 1 {
		return m.errors[0].Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d errors occurred:", len(m.errors)))
	for i, err := range m.errors {
		parts = append(parts, fmt.Sprintf("  [%d] %v", i+1, err))
	}
	return strings.Join(parts, "\n")
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.errors
}

// ContextError adds context to an existing error
type ContextError struct {
	Operation string
	Context   map[string]interface{}
	Cause     error
}

func (e *ContextError) Error() string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	contextParts := make([]string, 0, len(keys))
	for _, k := range keys {
		contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
	}

	if len(contextParts) > 0 {
		return fmt.Sprintf("%s [%s]: %v", e.Operation, strings.Join(contextParts, ", "), e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

func (e *ContextError) Unwrap() error {
	return e.Cause
}

// WithContext wraps an error with additional context
func WithContext(err error, operation string, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ContextError{
		Operation: operation,
		Context:   context,
		Cause:     err,
	}
}

// RecoverError converts a panic recovery value to a critical error
func RecoverError(r interface{}) error {
	var cause error
	switch v := r.(type) {
	case error:
		cause = fmt.Errorf("panic recovered: %w", v)
	case string:
		cause = fmt.Errorf("panic recovered: %s", v)
	default:
		cause = fmt.Errorf("panic recovered: %v", v)
	}
	return &Error{Kind: Unexpected, Critical: true, Err: cause}
}
