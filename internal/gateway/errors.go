package gateway

import (
	"errors"
	"fmt"
)

// Failure taxonomy for remote calls. Callers dispatch with errors.Is
// against these sentinels; the structured *Error carries the detail.
var (
	// ErrNetwork marks transport failures and transient remote
	// conditions. Retry-eligible on the next drain or pull.
	ErrNetwork = errors.New("network failure")

	// ErrRemoteRejected marks a remote refusal (constraint violation,
	// malformed payload). The core cannot tell transient from permanent
	// rejection, so these are retried on later drains as well.
	ErrRemoteRejected = errors.New("remote rejected operation")

	// ErrNotFound marks a target row absent remotely.
	ErrNotFound = errors.New("remote row not found")
)

// Error is a structured remote-call failure.
type Error struct {
	kind   error
	Status int
	Detail string
	cause  error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Detail != "":
		return fmt.Sprintf("%s: status %d: %s", e.kind, e.Status, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.kind, e.Status)
	case e.cause != nil:
		return fmt.Sprintf("%s: %s", e.kind, e.cause)
	default:
		return e.kind.Error()
	}
}

// Is maps the structured error onto its taxonomy sentinel.
func (e *Error) Is(target error) bool {
	return target == e.kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

func networkError(cause error) *Error {
	return &Error{kind: ErrNetwork, cause: cause}
}

// classifyStatus maps an HTTP response status onto the taxonomy.
// 408 and 429 are transient despite being 4xx; 5xx is assumed
// transient server trouble.
func classifyStatus(status int, detail string) *Error {
	switch {
	case status == 404:
		return &Error{kind: ErrNotFound, Status: status, Detail: detail}
	case status == 408 || status == 429 || status >= 500:
		return &Error{kind: ErrNetwork, Status: status, Detail: detail}
	default:
		return &Error{kind: ErrRemoteRejected, Status: status, Detail: detail}
	}
}
