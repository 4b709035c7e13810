// Package session stores per-session attributes for the captcha flow. A
// session is identified by an opaque ID issued by the HTTP layer; each session
// holds string attributes that expire together after a period of inactivity.
package session

import (
	"context"
	"errors"
)

// ErrEmptySessionID is returned when an operation is called without a session.
var ErrEmptySessionID = errors.New("session id is required")

// Store defines session attribute persistence. Operations on different
// sessions never interfere; concurrent writes to the same attribute are
// last-writer-wins.
type Store interface {
	// Get returns the attribute value and whether it was present.
	Get(ctx context.Context, sessionID, key string) (value string, ok bool, err error)

	// Set stores or overwrites an attribute and refreshes the session TTL.
	Set(ctx context.Context, sessionID, key, value string) error

	// Delete removes an attribute. Deleting an absent attribute is not an error.
	Delete(ctx context.Context, sessionID, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

func checkSessionID(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return nil
}
