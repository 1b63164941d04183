package domain

import "errors"

var (
	// ErrMemberNotFound signals a lookup miss for a member that was expected.
	ErrMemberNotFound = errors.New("member: not found")
	// ErrEmailPasswordMismatch covers both a wrong password and an unusable
	// stored hash, so callers cannot tell which check failed.
	ErrEmailPasswordMismatch = errors.New("member: email or password mismatch")
	// ErrInvalidToken covers every verification failure of a signed token.
	ErrInvalidToken = errors.New("token: invalid")
	// ErrTokenBuild signals a signing failure, which is a configuration fault.
	ErrTokenBuild = errors.New("token: build failed")
	// ErrUnauthorized is the generic authentication failure.
	ErrUnauthorized = errors.New("auth: unauthorized")
)
