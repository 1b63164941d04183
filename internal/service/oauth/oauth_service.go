package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/inkwell-auth/internal/adapter/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/config"
	domainoauth "github.com/smallbiznis/inkwell-auth/internal/domain/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/service"
)

// LoginResult is the outcome of a completed federated login.
type LoginResult struct {
	Tokens *service.TokenPair
	Mode   string
}

// Service orchestrates the OAuth2 redirect round-trip: building the
// authorization redirect, validating the callback against the pending
// request, exchanging the code, fetching the profile, and linking the
// identity to a local member.
type Service interface {
	StartAuthorization(provider, mode string) (*domainoauth.PendingRequest, error)
	HandleCallback(ctx context.Context, pending *domainoauth.PendingRequest, state, code string) (*LoginResult, error)
}

type oauthService struct {
	cfg      config.Config
	provider oauthadapter.ProviderClient
	linker   *Linker
	auth     *service.AuthService
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService wires the flow coordinator.
func NewService(cfg config.Config, provider oauthadapter.ProviderClient, linker *Linker, auth *service.AuthService, logger *zap.Logger) Service {
	return &oauthService{
		cfg:      cfg,
		provider: provider,
		linker:   linker,
		auth:     auth,
		logger:   logger,
		tracer:   otel.Tracer("github.com/smallbiznis/inkwell-auth/internal/service/oauth"),
	}
}

func (s *oauthService) StartAuthorization(provider, mode string) (*domainoauth.PendingRequest, error) {
	if provider != oauthadapter.ProviderGithub {
		return nil, domainoauth.ErrProviderNotFound
	}

	state, err := secureRandomString(32)
	if err != nil {
		return nil, err
	}

	pending := &domainoauth.PendingRequest{
		Provider:         provider,
		AuthorizationURI: s.cfg.GithubAuthURL,
		RedirectURI:      s.cfg.GithubRedirectURI,
		ClientID:         s.cfg.GithubClientID,
		Scope:            s.cfg.GithubScopes,
		ResponseType:     "code",
		State:            state,
		Prompt:           true,
		Mode:             mode,
		CreatedAt:        time.Now().UTC(),
	}

	rendered, err := renderAuthorizationURI(pending)
	if err != nil {
		return nil, err
	}
	pending.FullRedirectURI = rendered
	return pending, nil
}

func (s *oauthService) HandleCallback(ctx context.Context, pending *domainoauth.PendingRequest, state, code string) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.HandleCallback")
	defer span.End()

	if pending == nil {
		return nil, domainoauth.ErrPendingRequestMissing
	}
	// The CSRF defense: the callback state must match the pending request
	// byte for byte, no matter whether the code would have been valid.
	if state == "" || !hmac.Equal([]byte(pending.State), []byte(state)) {
		s.log().Warn("oauth2 state mismatch", zap.String("provider", pending.Provider))
		return nil, domainoauth.ErrStateMismatch
	}

	tokenResp, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	profile, err := s.provider.FetchProfile(ctx, tokenResp.AccessToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	member, err := s.linker.ResolveOrCreate(ctx, profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	pair, err := s.auth.IssueTokens(member)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.log().Info("audit",
		zap.String("event", "oauth2.login.success"),
		zap.String("provider", profile.Provider),
		zap.String("member_id", member.ID.String()),
	)
	return &LoginResult{Tokens: pair, Mode: pending.Mode}, nil
}

func (s *oauthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func renderAuthorizationURI(p *domainoauth.PendingRequest) (string, error) {
	parsed, err := url.Parse(p.AuthorizationURI)
	if err != nil {
		return "", err
	}
	params := parsed.Query()
	params.Set("client_id", p.ClientID)
	params.Set("redirect_uri", p.RedirectURI)
	params.Set("scope", p.Scope)
	params.Set("response_type", p.ResponseType)
	params.Set("state", p.State)
	params.Set("prompt", strconv.FormatBool(p.Prompt))
	for key, value := range p.AdditionalParams {
		params.Set(key, value)
	}
	parsed.RawQuery = params.Encode()
	return parsed.String(), nil
}

func secureRandomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
