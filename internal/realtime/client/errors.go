package client

import (
	"errors"
	"fmt"
	"time"

	"rentme-realtime/internal/domain/chat"
)

var (
	ErrQueueFull           = errors.New("client: offline queue is full")
	ErrNotConnected        = errors.New("client: not connected")
	ErrSessionClosed       = errors.New("client: session closed")
	ErrConversationNotOpen = errors.New("client: conversation is not open")
	ErrUnknownPlaceholder  = errors.New("client: unknown pending message")
	ErrNotFailed           = errors.New("client: message has not failed")
)

// AuthError means the credential was missing, rejected or expired. The
// connection is not retried.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client: auth failed: %s: %v", e.Reason, e.Err)
	}
	return "client: auth failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError wraps a network failure. The manager retries these.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SendTimeoutError marks a placeholder that got no echo in time.
type SendTimeoutError struct {
	ConversationID string
	TempID         string
	After          time.Duration
}

func (e *SendTimeoutError) Error() string {
	return fmt.Sprintf("client: message %s in %s not confirmed after %s", e.TempID, e.ConversationID, e.After)
}

// MergeConflictError reports a message id seen twice with different
// content. The first copy is kept.
type MergeConflictError struct {
	MessageID string
	Kept      chat.Message
	Dropped   chat.Message
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("client: conflicting copies of message %s", e.MessageID)
}

// IsAuthError reports whether err carries an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
