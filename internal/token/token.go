package token

import (
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/inkwell-auth/internal/config"
	"github.com/smallbiznis/inkwell-auth/internal/domain"
)

// Service signs and verifies access and refresh tokens. Access and refresh
// tokens use distinct secrets so one can never stand in for the other. The
// service holds no mutable state; every operation is a pure function of the
// input, the configured secrets, and the clock.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

// AccessClaims is the decoded payload of an access token. Roles carries the
// effective role as its first element.
type AccessClaims struct {
	Subject     string
	Email       string
	Nickname    string
	IsActivated bool
	Role        domain.Role
	Expiry      time.Time
	IssuedAt    time.Time
}

// RefreshClaims deliberately carries nothing but the subject and validity
// window, so a leaked refresh token reveals only an opaque member id.
type RefreshClaims struct {
	Subject  string
	Expiry   time.Time
	IssuedAt time.Time
}

type accessPayload struct {
	Email       string   `json:"email"`
	Nickname    string   `json:"nickname"`
	IsActivated bool     `json:"is_activated"`
	Roles       []string `json:"roles"`
}

// New constructs the token service from immutable configuration.
func New(cfg config.Config) *Service {
	return &Service{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		issuer:        cfg.JWTIssuer,
		audience:      cfg.JWTAudience,
		now:           time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// MintAccess signs an access token for the member. A signing failure means
// the service is misconfigured and surfaces as ErrTokenBuild.
func (s *Service) MintAccess(m domain.Member) (string, error) {
	now := s.now().UTC()
	std := gojwt.Claims{
		Subject:  m.ID.String(),
		Issuer:   s.issuer,
		Audience: gojwt.Audience{s.audience},
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	custom := accessPayload{
		Email:       m.Email,
		Nickname:    m.Nickname,
		IsActivated: m.IsActivated,
		Roles:       []string{m.Role.String()},
	}
	return s.sign(s.accessSecret, std, &custom)
}

// MintRefresh signs a refresh token carrying standard claims only.
func (s *Service) MintRefresh(m domain.Member) (string, error) {
	now := s.now().UTC()
	std := gojwt.Claims{
		Subject:  m.ID.String(),
		Issuer:   s.issuer,
		Audience: gojwt.Audience{s.audience},
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(s.refreshTTL)),
	}
	return s.sign(s.refreshSecret, std, nil)
}

// VerifyAccess checks signature, issuer, audience and expiry against the
// access secret. Every failure collapses to ErrInvalidToken so callers cannot
// distinguish why a token was rejected.
func (s *Service) VerifyAccess(token string) (AccessClaims, error) {
	var custom accessPayload
	std, err := s.verify(s.accessSecret, token, &custom)
	if err != nil {
		return AccessClaims{}, domain.ErrInvalidToken
	}
	if len(custom.Roles) == 0 {
		return AccessClaims{}, domain.ErrInvalidToken
	}
	role, err := domain.ParseRole(custom.Roles[0])
	if err != nil {
		return AccessClaims{}, domain.ErrInvalidToken
	}
	return AccessClaims{
		Subject:     std.Subject,
		Email:       custom.Email,
		Nickname:    custom.Nickname,
		IsActivated: custom.IsActivated,
		Role:        role,
		Expiry:      std.Expiry.Time(),
		IssuedAt:    std.IssuedAt.Time(),
	}, nil
}

// VerifyRefresh is the refresh-secret counterpart of VerifyAccess.
func (s *Service) VerifyRefresh(token string) (RefreshClaims, error) {
	std, err := s.verify(s.refreshSecret, token, nil)
	if err != nil {
		return RefreshClaims{}, domain.ErrInvalidToken
	}
	return RefreshClaims{
		Subject:  std.Subject,
		Expiry:   std.Expiry.Time(),
		IssuedAt: std.IssuedAt.Time(),
	}, nil
}

func (s *Service) sign(secret []byte, std gojwt.Claims, custom any) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", domain.ErrTokenBuild
	}
	builder := gojwt.Signed(signer).Claims(std)
	if custom != nil {
		builder = builder.Claims(custom)
	}
	serialized, err := builder.Serialize()
	if err != nil {
		return "", domain.ErrTokenBuild
	}
	return serialized, nil
}

func (s *Service) verify(secret []byte, token string, custom any) (gojwt.Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return gojwt.Claims{}, err
	}
	var std gojwt.Claims
	dests := []any{&std}
	if custom != nil {
		dests = append(dests, custom)
	}
	if err := parsed.Claims(secret, dests...); err != nil {
		return gojwt.Claims{}, err
	}
	if err := std.Validate(gojwt.Expected{
		Issuer:      s.issuer,
		AnyAudience: gojwt.Audience{s.audience},
		Time:        s.now().UTC(),
	}); err != nil {
		return gojwt.Claims{}, err
	}
	return std, nil
}
