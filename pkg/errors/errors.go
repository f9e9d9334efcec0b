// Package apperrors holds the error taxonomy shared by the session core and the gateways
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Gateway errors
var (
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountNotFound   = errors.New("account not found")
	ErrUnavailable       = errors.New("remote service unavailable")
	ErrRejected          = errors.New("request rejected")
	ErrItemNotFound      = errors.New("item not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyRegistered = errors.New("participant already registered")
	ErrNotRegistered     = errors.New("participant not registered")
)

// Session errors
var (
	ErrEmptyUsername       = errors.New("username must not be empty")
	ErrInvalidState        = errors.New("operation not allowed in current session state")
	ErrListenerInactive    = errors.New("callback listener is not active")
	ErrMailboxClosed       = errors.New("session mailbox closed")
	ErrNotOwner            = errors.New("item is not sold by this participant")
	ErrOwnItem             = errors.New("cannot buy own item")
	ErrInvalidItem         = errors.New("invalid item")
	ErrInvalidWish         = errors.New("invalid wish")
	ErrMissingCollaborator = errors.New("missing remote gateway")
)

// OperationError reports a failed user action. The session stays registered.
type OperationError struct {
	Op     string
	ItemID string
	Item   string
	Wish   string
	Err    error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Item != "" {
		fmt.Fprintf(&b, " item=%q", e.Item)
	}
	if e.ItemID != "" {
		fmt.Fprintf(&b, " id=%s", e.ItemID)
	}
	if e.Wish != "" {
		fmt.Fprintf(&b, " wish=%q", e.Wish)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *OperationError) Unwrap() error { return e.Err }

// SessionError reports a registration or unregistration failure
type SessionError struct {
	Op       string
	Username string
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Username, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsRemoteFault reports whether err originated from a gateway rather than a local precondition
func IsRemoteFault(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrEmptyUsername),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrOwnItem),
		errors.Is(err, ErrInvalidItem),
		errors.Is(err, ErrInvalidWish),
		errors.Is(err, ErrMissingCollaborator):
		return false
	}
	return true
}
