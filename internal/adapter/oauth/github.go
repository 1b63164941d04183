package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/inkwell-auth/internal/config"
	domainoauth "github.com/smallbiznis/inkwell-auth/internal/domain/oauth"
)

// ProviderGithub tags identities and profiles originating from GitHub.
const ProviderGithub = "github"

// ProviderClient encapsulates the two outbound HTTP calls of a federated
// login: the code exchange and the profile fetch.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, code string) (*domainoauth.TokenResponse, error)
	FetchProfile(ctx context.Context, accessToken string) (*domainoauth.UserProfile, error)
}

// GithubClient is the GitHub implementation of ProviderClient. It normalizes
// the provider-specific payloads into the generic profile shape the identity
// linker consumes.
type GithubClient struct {
	httpClient   *http.Client
	tokenURL     string
	profileURL   string
	clientID     string
	clientSecret string
}

// NewGithubClient constructs the client. A nil http.Client gets a default
// with a 10s timeout so a stuck provider cannot hold a request open forever.
func NewGithubClient(cfg config.Config, client *http.Client) *GithubClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GithubClient{
		httpClient:   client,
		tokenURL:     cfg.GithubTokenURL,
		profileURL:   cfg.GithubProfileURL,
		clientID:     cfg.GithubClientID,
		clientSecret: cfg.GithubClientSecret,
	}
}

// ExchangeCode redeems an authorization code at the token endpoint.
func (c *GithubClient) ExchangeCode(ctx context.Context, code string) (*domainoauth.TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build token request: %v", domainoauth.ErrProviderComm, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", domainoauth.ErrProviderComm, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %v", domainoauth.ErrProviderComm, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: token exchange status=%d", domainoauth.ErrProviderComm, resp.StatusCode)
	}

	var token domainoauth.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", domainoauth.ErrProviderComm, err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("%w: empty access token", domainoauth.ErrProviderComm)
	}
	return &token, nil
}

type githubProfile struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	NodeID    string  `json:"node_id"`
	AvatarURL string  `json:"avatar_url"`
	Email     *string `json:"email"`
}

// FetchProfile loads the authenticated user's GitHub profile.
func (c *GithubClient) FetchProfile(ctx context.Context, accessToken string) (*domainoauth.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build profile request: %v", domainoauth.ErrProfileFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request: %v", domainoauth.ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read profile: %v", domainoauth.ErrProfileFetch, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: profile status=%d", domainoauth.ErrProfileFetch, resp.StatusCode)
	}

	var profile githubProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("%w: %v", domainoauth.ErrProfileDecode, err)
	}
	if profile.ID == 0 {
		return nil, fmt.Errorf("%w: missing user id", domainoauth.ErrProfileDecode)
	}

	normalized := &domainoauth.UserProfile{
		Provider:    ProviderGithub,
		UserID:      strconv.FormatInt(profile.ID, 10),
		AccessToken: accessToken,
	}
	if profile.Email != nil {
		normalized.Email = strings.TrimSpace(*profile.Email)
	}
	return normalized, nil
}
