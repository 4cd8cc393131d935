package mfa

import "context"

// Policy decides whether a user must complete MFA.
type Policy interface {
	Required(ctx context.Context, userID string) (bool, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, userID string) (bool, error)

func (f PolicyFunc) Required(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// StaticPolicy requires MFA for every user when true.
type StaticPolicy bool

func (p StaticPolicy) Required(context.Context, string) (bool, error) {
	return bool(p), nil
}
