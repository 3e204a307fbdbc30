// Package errs implements the error taxonomy shared by the Manager,
// Transport Router, and Mesh Coordinator: a single tagged error type with
// per-kind constructors, retryability classification, and a generic Wrap
// for bringing library errors into the taxonomy at layer boundaries.
package errs

import "fmt"

// Kind categorizes an Error by subsystem concern.
type Kind int

const (
	// Filesystem
	KindIoError Kind = iota
	KindFileNotFound
	KindFileAlreadyExists
	KindInvalidIdentifier
	KindMemoryMappingError
	KindInsufficientDiskSpace
	KindFileSizeExceeded
	KindPermissionDenied

	// Network
	KindNetworkConnection
	KindTransportError
	KindTransportUnavailable
	KindTimeout

	// Security
	KindAuthenticationFailed
	KindAuthorization
	KindInvalidToken
	KindTlsError
	KindSecurityPolicyViolation

	// Configuration
	KindConfigurationError
	KindValidationError
	KindMissingConfiguration
	KindInvalidConfiguration

	// Serialization
	KindJsonSerialization
	KindBinarySerialization
	KindMessagePackSerialization
	KindCborSerialization
	KindUnsupportedFormat

	// Resource/Concurrency
	KindResourceExhausted
	KindAllocationError
	KindLockTimeout
	KindChannel
	KindTaskJoin

	// Protocol
	KindInvalidMessage
	KindMessageSizeExceeded
	KindMessageCorrupted
	KindUnsupportedProtocolVersion

	// Lifecycle
	KindTtlExpired
	KindInvalidOperation

	// Internal/Unexpected
	KindInternalError
	KindNotSupported
)

var kindNames = map[Kind]string{
	KindIoError:                     "io_error",
	KindFileNotFound:                "file_not_found",
	KindFileAlreadyExists:           "file_already_exists",
	KindInvalidIdentifier:           "invalid_identifier",
	KindMemoryMappingError:          "memory_mapping_error",
	KindInsufficientDiskSpace:       "insufficient_disk_space",
	KindFileSizeExceeded:            "file_size_exceeded",
	KindPermissionDenied:            "permission_denied",
	KindNetworkConnection:           "network_connection",
	KindTransportError:              "transport_error",
	KindTransportUnavailable:        "transport_unavailable",
	KindTimeout:                     "timeout",
	KindAuthenticationFailed:        "authentication_failed",
	KindAuthorization:               "authorization",
	KindInvalidToken:                "invalid_token",
	KindTlsError:                    "tls_error",
	KindSecurityPolicyViolation:     "security_policy_violation",
	KindConfigurationError:          "configuration_error",
	KindValidationError:             "validation_error",
	KindMissingConfiguration:        "missing_configuration",
	KindInvalidConfiguration:        "invalid_configuration",
	KindJsonSerialization:           "json_serialization",
	KindBinarySerialization:         "binary_serialization",
	KindMessagePackSerialization:    "messagepack_serialization",
	KindCborSerialization:           "cbor_serialization",
	KindUnsupportedFormat:           "unsupported_format",
	KindResourceExhausted:           "resource_exhausted",
	KindAllocationError:             "allocation_error",
	KindLockTimeout:                 "lock_timeout",
	KindChannel:                     "channel",
	KindTaskJoin:                    "task_join",
	KindInvalidMessage:              "invalid_message",
	KindMessageSizeExceeded:         "message_size_exceeded",
	KindMessageCorrupted:            "message_corrupted",
	KindUnsupportedProtocolVersion:  "unsupported_protocol_version",
	KindTtlExpired:                  "ttl_expired",
	KindInvalidOperation:            "invalid_operation",
	KindInternalError:               "internal_error",
	KindNotSupported:                "not_supported",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// retryable classifies which error kinds are safe for a caller to retry.
// Kinds absent here default to non-retryable.
var retryable = map[Kind]bool{
	KindNetworkConnection:    true,
	KindTimeout:              true,
	KindTransportUnavailable: true,
	KindLockTimeout:          true,
	KindResourceExhausted:    true,
	KindAllocationError:      true,
}

// Error is the single tagged error type used across the repository.
type Error struct {
	Kind      Kind
	Op        string // operation that failed, e.g. "request_file"
	Path      string // filesystem path, when applicable
	Format    string // serialization format identifier, when applicable
	Message   string
	Retryable bool
	Wrapped   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = msg + " (path=" + e.Path + ")"
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind, auto-classifying retryability.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Retryable: retryable[kind]}
}

// Wrap constructs an Error of the given kind wrapping a lower-level error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: err.Error(), Retryable: retryable[kind], Wrapped: err}
}

// WithPath attaches a filesystem path to the error (returns the same pointer).
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithFormat attaches a serialization format identifier to the error.
func (e *Error) WithFormat(format string) *Error {
	e.Format = format
	return e
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

// as is a tiny errors.As shim kept local to avoid importing "errors"; it
// is shared by IsKind and IsRetryable.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsRetryable reports whether err, if an *Error, is classified retryable.
func IsRetryable(err error) bool {
	var e *Error
	if as(err, &e) {
		return e.Retryable
	}
	return false
}

// Constructors for the kinds exercised directly by component operations.

func NewIoError(op, path string, cause error) *Error {
	return Wrap(KindIoError, op, cause).WithPath(path)
}

func NewFileNotFound(op, path string) *Error {
	return New(KindFileNotFound, op, "file not found").WithPath(path)
}

func NewFileAlreadyExists(op, path string) *Error {
	return New(KindFileAlreadyExists, op, "file already exists").WithPath(path)
}

func NewInvalidIdentifier(op, identifier string) *Error {
	return New(KindInvalidIdentifier, op, "invalid identifier: "+identifier)
}

func NewMemoryMappingError(op string, cause error) *Error {
	return Wrap(KindMemoryMappingError, op, cause)
}

func NewPermissionDenied(op, resource string) *Error {
	return New(KindPermissionDenied, op, "permission denied").WithPath(resource)
}

func NewInvalidOperation(op, reason string) *Error {
	return New(KindInvalidOperation, op, reason)
}

func NewTimeout(op string, timeoutMs int64) *Error {
	return New(KindTimeout, op, fmt.Sprintf("timed out after %dms", timeoutMs))
}

func NewTransportError(op, transportType, message string) *Error {
	return New(KindTransportError, op, fmt.Sprintf("%s: %s", transportType, message))
}

func NewAuthenticationFailed(op, reason string) *Error {
	return New(KindAuthenticationFailed, op, reason)
}

func NewInvalidToken(op string) *Error {
	return New(KindInvalidToken, op, "invalid token")
}

func NewConfigurationError(op, component, message string) *Error {
	return New(KindConfigurationError, op, fmt.Sprintf("%s: %s", component, message))
}

func NewValidationError(op, field, reason string) *Error {
	return New(KindValidationError, op, fmt.Sprintf("%s: %s", field, reason))
}

func NewResourceExhausted(op, resource string) *Error {
	return New(KindResourceExhausted, op, "resource exhausted: "+resource)
}

func NewAllocationError(op, resource string, requested, available int64) *Error {
	return New(KindAllocationError, op, fmt.Sprintf("%s: requested=%d available=%d", resource, requested, available))
}

func NewTtlExpired(op, identifier string, ttlSeconds int64) *Error {
	return New(KindTtlExpired, op, fmt.Sprintf("%s expired after ttl=%ds", identifier, ttlSeconds))
}

func NewInternalError(op, message string) *Error {
	return New(KindInternalError, op, message)
}

func NewNotSupported(op string) *Error {
	return New(KindNotSupported, op, "operation not supported")
}
