package mfa

import (
	"context"
	"time"
)

// User is the view of an account the engine needs.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// UserDirectory resolves user ids. GetUser returns ErrUserNotFound for
// unknown ids.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// DirectoryFunc adapts a function to UserDirectory.
type DirectoryFunc func(ctx context.Context, userID string) (*User, error)

func (f DirectoryFunc) GetUser(ctx context.Context, userID string) (*User, error) {
	return f(ctx, userID)
}

// StaticDirectory serves users from a map. Useful for tests and tooling.
type StaticDirectory map[string]User

func (d StaticDirectory) GetUser(_ context.Context, userID string) (*User, error) {
	u, ok := d[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if u.ID == "" {
		u.ID = userID
	}
	return &u, nil
}
