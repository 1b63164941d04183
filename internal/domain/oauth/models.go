package oauth

import "time"

// PendingRequest is the ephemeral record of an in-flight authorization
// attempt. It is serialized into an authenticated cookie at redirect time and
// consumed exactly once when the provider calls back.
type PendingRequest struct {
	Provider         string            `json:"provider"`
	AuthorizationURI string            `json:"authorization_uri"`
	RedirectURI      string            `json:"redirect_uri"`
	ClientID         string            `json:"client_id"`
	Scope            string            `json:"scope"`
	ResponseType     string            `json:"response_type"`
	State            string            `json:"state"`
	Prompt           bool              `json:"prompt"`
	Mode             string            `json:"mode,omitempty"`
	AdditionalParams map[string]string `json:"additional_params,omitempty"`
	FullRedirectURI  string            `json:"full_redirect_uri,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TokenResponse models the provider token endpoint reply.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope,omitempty"`
}

// UserProfile is the provider-agnostic profile consumed by the identity
// linker. Email stays empty when the provider does not disclose one.
type UserProfile struct {
	Provider    string `json:"provider"`
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	AccessToken string `json:"access_token"`
}
