package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/inkwell-auth/internal/domain"
	"github.com/smallbiznis/inkwell-auth/internal/password"
	"github.com/smallbiznis/inkwell-auth/internal/repository"
	"github.com/smallbiznis/inkwell-auth/internal/token"
)

// TokenPair is the login payload shared by password and federated logins.
type TokenPair struct {
	Type         string `json:"type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService authenticates email/password pairs and reissues access tokens.
type AuthService struct {
	txm    repository.TxManager
	tokens *token.Service
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(txm repository.TxManager, tokens *token.Service, logger *zap.Logger) *AuthService {
	return &AuthService{
		txm:    txm,
		tokens: tokens,
		logger: logger,
		tracer: otel.Tracer("github.com/smallbiznis/inkwell-auth/internal/service"),
	}
}

// Login verifies the credentials against the stored hash and returns a fresh
// token pair. A wrong password and an unusable hash produce the same error so
// the response does not reveal which check failed.
func (s *AuthService) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	member, err := s.loadMemberByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	valid, err := password.Verify(pass, member.PasswordHash)
	if err != nil || !valid {
		return nil, domain.ErrEmailPasswordMismatch
	}

	pair, err := s.IssueTokens(member)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.audit("password.login.success", member)
	return pair, nil
}

// Refresh validates a refresh token, reloads the member, and mints a new
// access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", domain.ErrInvalidToken
	}
	memberID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", domain.ErrInvalidToken
	}

	store, err := s.txm.ReadOnly(ctx)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer store.Rollback(ctx)

	member, err := store.Members().FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrMemberNotFound
		}
		span.RecordError(err)
		return "", err
	}
	if err := store.Commit(ctx); err != nil {
		span.RecordError(err)
		return "", err
	}

	access, err := s.tokens.MintAccess(member)
	if err != nil {
		s.log().Error("mint access token failed", zap.Error(err))
		return "", domain.ErrUnauthorized
	}
	s.audit("refresh.success", member)
	return access, nil
}

// IssueTokens mints the access/refresh pair for an already-authenticated
// member. Signing failures are logged with detail but surfaced only as
// Unauthorized.
func (s *AuthService) IssueTokens(member domain.Member) (*TokenPair, error) {
	access, err := s.tokens.MintAccess(member)
	if err != nil {
		s.log().Error("mint access token failed", zap.Error(err))
		return nil, domain.ErrUnauthorized
	}
	refresh, err := s.tokens.MintRefresh(member)
	if err != nil {
		s.log().Error("mint refresh token failed", zap.Error(err))
		return nil, domain.ErrUnauthorized
	}
	return &TokenPair{Type: "Bearer", AccessToken: access, RefreshToken: refresh}, nil
}

// ListMembers returns every member inside one read-only transaction.
func (s *AuthService) ListMembers(ctx context.Context) ([]domain.Member, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ListMembers")
	defer span.End()

	store, err := s.txm.ReadOnly(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer store.Rollback(ctx)

	members, err := store.Members().List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := store.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return members, nil
}

func (s *AuthService) loadMemberByEmail(ctx context.Context, email string) (domain.Member, error) {
	store, err := s.txm.ReadOnly(ctx)
	if err != nil {
		return domain.Member{}, err
	}
	defer store.Rollback(ctx)

	normalized := strings.ToLower(strings.TrimSpace(email))
	member, err := store.Members().FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Member{}, domain.ErrMemberNotFound
		}
		return domain.Member{}, err
	}
	// Read-only transaction is closed regardless of the verification outcome.
	if err := store.Commit(ctx); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, member domain.Member) {
	s.log().Info("audit",
		zap.String("event", event),
		zap.Time("timestamp", time.Now().UTC()),
		zap.String("member_id", member.ID.String()),
	)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
