package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Category sentinels for the protocol runtime. Callers match on these with
// errors.Is to decide between retrying and aborting; the runtime never retries.
var (
	ErrTimeout            = fmt.Errorf("command timed out")
	ErrUnexpectedResult   = fmt.Errorf("unexpected result type")
	ErrSessionNotReady    = fmt.Errorf("session not ready")
	ErrSessionFailed      = fmt.Errorf("session initialization failed")
	ErrHandshakeFailed    = fmt.Errorf("transport handshake failed")
	ErrTransportClosed    = fmt.Errorf("transport closed")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrDuplicateID        = fmt.Errorf("command id already outstanding")
	ErrMalformedMessage   = fmt.Errorf("malformed message")
	ErrUnknownMessageType = fmt.Errorf("unknown message type")
	ErrRemote             = fmt.Errorf("remote error")
	ErrInvalidInput       = fmt.Errorf("invalid input")
)

// ErrorCode is a remote-reported failure kind. The set is closed: values the
// client does not recognise decode as ErrorCodeUnknownError.
type ErrorCode string

const (
	ErrorCodeInvalidArgument                ErrorCode = "invalid argument"
	ErrorCodeInvalidSelector                ErrorCode = "invalid selector"
	ErrorCodeInvalidSessionID               ErrorCode = "invalid session id"
	ErrorCodeInvalidWebExtension            ErrorCode = "invalid web extension"
	ErrorCodeMoveTargetOutOfBounds          ErrorCode = "move target out of bounds"
	ErrorCodeNoSuchAlert                    ErrorCode = "no such alert"
	ErrorCodeNoSuchElement                  ErrorCode = "no such element"
	ErrorCodeNoSuchFrame                    ErrorCode = "no such frame"
	ErrorCodeNoSuchHandle                   ErrorCode = "no such handle"
	ErrorCodeNoSuchHistoryEntry             ErrorCode = "no such history entry"
	ErrorCodeNoSuchIntercept                ErrorCode = "no such intercept"
	ErrorCodeNoSuchNetworkCollector         ErrorCode = "no such network collector"
	ErrorCodeNoSuchNetworkData              ErrorCode = "no such network data"
	ErrorCodeNoSuchNode                     ErrorCode = "no such node"
	ErrorCodeNoSuchRequest                  ErrorCode = "no such request"
	ErrorCodeNoSuchScript                   ErrorCode = "no such script"
	ErrorCodeNoSuchStoragePartition         ErrorCode = "no such storage partition"
	ErrorCodeNoSuchUserContext              ErrorCode = "no such user context"
	ErrorCodeNoSuchWebExtension             ErrorCode = "no such web extension"
	ErrorCodeSessionNotCreated              ErrorCode = "session not created"
	ErrorCodeUnableToCaptureScreen          ErrorCode = "unable to capture screen"
	ErrorCodeUnableToCloseBrowser           ErrorCode = "unable to close browser"
	ErrorCodeUnableToSetCookie              ErrorCode = "unable to set cookie"
	ErrorCodeUnableToSetFileInput           ErrorCode = "unable to set file input"
	ErrorCodeUnavailableNetworkData         ErrorCode = "unavailable network data"
	ErrorCodeUnderspecifiedStoragePartition ErrorCode = "underspecified storage partition"
	ErrorCodeUnknownCommand                 ErrorCode = "unknown command"
	ErrorCodeUnknownError                   ErrorCode = "unknown error"
	ErrorCodeUnsupportedOperation           ErrorCode = "unsupported operation"
)

var knownErrorCodes = map[ErrorCode]bool{
	ErrorCodeInvalidArgument:                true,
	ErrorCodeInvalidSelector:                true,
	ErrorCodeInvalidSessionID:               true,
	ErrorCodeInvalidWebExtension:            true,
	ErrorCodeMoveTargetOutOfBounds:          true,
	ErrorCodeNoSuchAlert:                    true,
	ErrorCodeNoSuchElement:                  true,
	ErrorCodeNoSuchFrame:                    true,
	ErrorCodeNoSuchHandle:                   true,
	ErrorCodeNoSuchHistoryEntry:             true,
	ErrorCodeNoSuchIntercept:                true,
	ErrorCodeNoSuchNetworkCollector:         true,
	ErrorCodeNoSuchNetworkData:              true,
	ErrorCodeNoSuchNode:                     true,
	ErrorCodeNoSuchRequest:                  true,
	ErrorCodeNoSuchScript:                   true,
	ErrorCodeNoSuchStoragePartition:         true,
	ErrorCodeNoSuchUserContext:              true,
	ErrorCodeNoSuchWebExtension:             true,
	ErrorCodeSessionNotCreated:              true,
	ErrorCodeUnableToCaptureScreen:          true,
	ErrorCodeUnableToCloseBrowser:           true,
	ErrorCodeUnableToSetCookie:              true,
	ErrorCodeUnableToSetFileInput:           true,
	ErrorCodeUnavailableNetworkData:         true,
	ErrorCodeUnderspecifiedStoragePartition: true,
	ErrorCodeUnknownCommand:                 true,
	ErrorCodeUnknownError:                   true,
	ErrorCodeUnsupportedOperation:           true,
}

// ParseErrorCode maps a wire string to an ErrorCode. The boolean reports
// whether s was a recognised code.
func ParseErrorCode(s string) (ErrorCode, bool) {
	code := ErrorCode(s)
	if knownErrorCodes[code] {
		return code, true
	}
	return ErrorCodeUnknownError, false
}

// Error lets an ErrorCode be used as an errors.Is target against *RemoteError.
func (c ErrorCode) Error() string { return string(c) }

// UnmarshalJSON folds unrecognised codes into ErrorCodeUnknownError.
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c, _ = ParseErrorCode(s)
	return nil
}

// RemoteError is a failure reported by the remote end for a specific command.
type RemoteError struct {
	Code       ErrorCode
	Message    string
	Stacktrace string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: %s", e.Code)
	}
	return fmt.Sprintf("remote error: %s: %s", e.Code, e.Message)
}

// Is matches ErrRemote and the ErrorCode carried by e.
func (e *RemoteError) Is(target error) bool {
	if target == ErrRemote {
		return true
	}
	code, ok := target.(ErrorCode)
	return ok && code == e.Code
}

// RemoteErrorCode extracts the ErrorCode from err. The boolean is false when
// err does not carry a *RemoteError.
func RemoteErrorCode(err error) (ErrorCode, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Session.Send")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTimeout reports whether err is a correlation timeout rather than a
// remote-reported failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
