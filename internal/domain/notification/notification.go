package notification

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("notification: not found")
	ErrUserRequired  = errors.New("notification: user id is required")
	ErrTitleRequired = errors.New("notification: title is required")
	ErrUnknownType   = errors.New("notification: unknown type")
)

// Type classifies where a notification came from.
type Type string

const (
	TypeBooking Type = "booking"
	TypePayment Type = "payment"
	TypeSystem  Type = "system"
	TypeMessage Type = "message"
)

// ParseType validates a raw notification type.
func ParseType(raw string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeBooking:
		return TypeBooking, nil
	case TypePayment:
		return TypePayment, nil
	case TypeSystem:
		return TypeSystem, nil
	case TypeMessage:
		return TypeMessage, nil
	default:
		return "", ErrUnknownType
	}
}

// Notification is a cross-feature event addressed to one user.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId,omitempty"`
	Type      Type              `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	IsRead    bool              `json:"isRead"`
}

// Validate checks required fields before persistence.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.UserID) == "" {
		return ErrUserRequired
	}
	if strings.TrimSpace(n.Title) == "" {
		return ErrTitleRequired
	}
	if _, err := ParseType(string(n.Type)); err != nil {
		return err
	}
	return nil
}

// Newer orders notifications newest first, ties by id.
func Newer(a, b Notification) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
