package oauth

import "errors"

var (
	// ErrProviderNotFound signals an unknown federation provider tag.
	ErrProviderNotFound = errors.New("oauth2: provider not found")
	// ErrPendingRequestMissing indicates the flow cookie is absent or
	// could not be authenticated.
	ErrPendingRequestMissing = errors.New("oauth2: pending request missing or malformed")
	// ErrStateMismatch indicates the callback state does not match the
	// pending request. This is the CSRF check failing.
	ErrStateMismatch = errors.New("oauth2: state mismatch")
	// ErrProviderComm covers network or provider failures during the
	// token exchange.
	ErrProviderComm = errors.New("oauth2: provider communication failed")
	// ErrProfileFetch indicates the profile endpoint call failed.
	ErrProfileFetch = errors.New("oauth2: failed to get user profile")
	// ErrProfileDecode indicates the profile payload could not be parsed.
	ErrProfileDecode = errors.New("oauth2: failed to deserialize user profile")
)
