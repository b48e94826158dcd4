// Package errors provides structured error types for installkit.
// It implements error classification, wrapping, user-facing message extraction
// and secret redaction.
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindConfig indicates a configuration error.
	KindConfig
	// KindValidation indicates invalid user input (bad URL, empty release list).
	KindValidation
	// KindUpload indicates a package or bundle upload failure.
	KindUpload
	// KindInstall indicates an install, update or uninstall failure.
	KindInstall
	// KindTask indicates a failure reported by a server-side install task.
	KindTask
	// KindVersion indicates a versioning error.
	KindVersion
	// KindState indicates an illegal state or re-entrant call.
	KindState
	// KindNetwork indicates a transport error reported by a collaborator.
	KindNetwork
	// KindIO indicates a file I/O error.
	KindIO
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindCanceled indicates the operation was canceled.
	KindCanceled
	// KindInternal indicates an internal error.
	KindInternal
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindUpload:
		return "upload"
	case KindInstall:
		return "install"
	case KindTask:
		return "task"
	case KindVersion:
		return "version"
	case KindState:
		return "state"
	case KindNetwork:
		return "network"
	case KindIO:
		return "io"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the standard error type for installkit.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message, safe to show to users.
	Message string
	// Err is the underlying error.
	Err error
	// Recoverable indicates if the error can be recovered from.
	Recoverable bool
	// Details contains additional context about the error.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// For *Error types, it checks if both the Kind and Op match.
// For sentinel errors (errors without Op), only Kind and Message are compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		if t.Message == "" {
			return e.Kind == t.Kind
		}
		return e.Kind == t.Kind && e.Message == t.Message
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// WithDetail adds a single detail to the error and returns the modified error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context. Validation and
// network errors are recoverable.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{
		Kind:        kind,
		Op:          op,
		Message:     message,
		Err:         err,
		Recoverable: kind == KindValidation || kind == KindNetwork,
	}
}

// E is a convenience function to create errors with various arguments.
// Arguments can be of type Kind, string (operation, then message), error,
// map[string]any (details) or bool (recoverable).
func E(args ...any) *Error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else if e.Message == "" {
				e.Message = a
			}
		case *Error:
			e.Err = a
			if e.Kind == KindUnknown {
				e.Kind = a.Kind
			}
		case error:
			e.Err = a
		case map[string]any:
			e.Details = a
		case bool:
			e.Recoverable = a
		}
	}
	return e
}

// GetKind returns the Kind of an error.
// If the error is not an *Error, it returns KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// IsRecoverable returns true if the error is recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// UserMessage returns the message a user should see for err.
// Only *Error values carry a user-facing message; plain errors (transport
// failures, panics turned into errors) yield "" and false so callers can fall
// back to a generic text while logging the original.
func UserMessage(err error) (string, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	for cur := e; cur != nil; {
		if cur.Message != "" && cur.Kind != KindInternal {
			return RedactSensitive(cur.Message), true
		}
		var next *Error
		if cur.Err == nil || !errors.As(cur.Err, &next) {
			break
		}
		cur = next
	}
	return "", false
}

// Common error constructors for frequently used error types.

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{
		Kind:        KindValidation,
		Op:          op,
		Message:     message,
		Recoverable: true,
	}
}

// Upload creates an upload error.
func Upload(op, message string) *Error {
	return &Error{Kind: KindUpload, Op: op, Message: message}
}

// UploadWrap wraps an error as an upload error.
func UploadWrap(err error, op, message string) *Error {
	return Wrap(err, KindUpload, op, message)
}

// Install creates an install error.
func Install(op, message string) *Error {
	return &Error{Kind: KindInstall, Op: op, Message: message}
}

// Task creates a task failure error.
func Task(op, message string) *Error {
	return &Error{Kind: KindTask, Op: op, Message: message}
}

// Version creates a versioning error.
func Version(op, message string) *Error {
	return &Error{Kind: KindVersion, Op: op, Message: message}
}

// State creates a state error.
func State(op, message string) *Error {
	return &Error{Kind: KindState, Op: op, Message: message}
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// IOWrap wraps an error as an I/O error.
func IOWrap(err error, op, message string) *Error {
	return Wrap(err, KindIO, op, message)
}

// NetworkWrap wraps an error as a network error.
func NetworkWrap(err error, op, message string) *Error {
	return Wrap(err, KindNetwork, op, message)
}

// Internal creates an internal error.
func Internal(op, message string) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message}
}

// InternalWrap wraps an error as an internal error.
func InternalWrap(err error, op, message string) *Error {
	return Wrap(err, KindInternal, op, message)
}

// Sensitive data redaction patterns.
// Word boundaries (\b) are used where applicable so patterns match complete
// tokens and not substrings of unrelated words.
var sensitivePatterns = []*regexp.Regexp{
	// GitHub tokens: ghp_..., gho_..., ghs_..., ghr_..., ghu_...
	regexp.MustCompile(`\bgh[poshru]_[a-zA-Z0-9]{36,}\b`),
	// GitHub fine-grained tokens
	regexp.MustCompile(`\bgithub_pat_[a-zA-Z0-9_]{22,}\b`),
	// Generic bearer tokens
	regexp.MustCompile(`\bBearer\s+[a-zA-Z0-9_.-]{20,}\b`),
	// Basic auth with password in URL
	regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`),
}

// RedactSensitive removes tokens and credentials from a message.
func RedactSensitive(s string) string {
	result := s
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// RedactError creates a new error with sensitive data redacted from its message.
// If the error is nil, returns nil.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	redacted := RedactSensitive(err.Error())
	if redacted == err.Error() {
		return err
	}
	return fmt.Errorf("%s", redacted)
}

// IsSensitive checks if a string contains sensitive patterns.
func IsSensitive(s string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	lower := strings.ToLower(s)
	for _, word := range sensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// sensitiveWords mark strings that likely carry a credential.
var sensitiveWords = []string{"password", "token", "secret", "api_key", "apikey"}
