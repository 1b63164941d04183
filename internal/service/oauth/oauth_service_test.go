package oauth_test

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/inkwell-auth/internal/config"
	"github.com/smallbiznis/inkwell-auth/internal/domain"
	domainoauth "github.com/smallbiznis/inkwell-auth/internal/domain/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/password"
	"github.com/smallbiznis/inkwell-auth/internal/repository"
	"github.com/smallbiznis/inkwell-auth/internal/service"
	oauthsvc "github.com/smallbiznis/inkwell-auth/internal/service/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/token"
)

func testConfig() config.Config {
	return config.Config{
		AccessTokenSecret:  "access-secret-access-secret-0001",
		RefreshTokenSecret: "refresh-secret-refresh-secret-01",
		AccessTokenTTL:     time.Hour,
		RefreshTokenTTL:    14 * 24 * time.Hour,
		JWTIssuer:          "inkwell-auth",
		JWTAudience:        "inkwell",
		GithubClientID:     "client-id",
		GithubClientSecret: "client-secret",
		GithubAuthURL:      "https://github.com/login/oauth/authorize",
		GithubTokenURL:     "https://github.com/login/oauth/access_token",
		GithubProfileURL:   "https://api.github.com/user",
		GithubScopes:       "read:user",
		GithubRedirectURI:  "https://auth.example.com/oauth2/github/callback",
		PendingFlowTTL:     3 * time.Minute,
	}
}

type oauthHarness struct {
	service  oauthsvc.Service
	provider *fakeProviderClient
	data     *memoryData
	tokens   *token.Service
}

func newOAuthHarness(t *testing.T) *oauthHarness {
	t.Helper()
	cfg := testConfig()
	data := newMemoryData()
	txm := &memoryTxManager{data: data}
	tokens := token.New(cfg)
	auth := service.NewAuthService(txm, tokens, zap.NewNop())
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	linker := oauthsvc.NewLinker(txm, node, zap.NewNop())
	provider := &fakeProviderClient{}
	return &oauthHarness{
		service:  oauthsvc.NewService(cfg, provider, linker, auth, zap.NewNop()),
		provider: provider,
		data:     data,
		tokens:   tokens,
	}
}

func (h *oauthHarness) startPending(t *testing.T) *domainoauth.PendingRequest {
	t.Helper()
	pending, err := h.service.StartAuthorization("github", "sign-in")
	require.NoError(t, err)
	return pending
}

func TestStartAuthorizationUnknownProvider(t *testing.T) {
	h := newOAuthHarness(t)
	_, err := h.service.StartAuthorization("gitlab", "")
	require.ErrorIs(t, err, domainoauth.ErrProviderNotFound)
}

func TestStartAuthorizationBuildsRedirect(t *testing.T) {
	h := newOAuthHarness(t)
	pending := h.startPending(t)

	require.Equal(t, "github", pending.Provider)
	require.Equal(t, "code", pending.ResponseType)
	require.Equal(t, "sign-in", pending.Mode)
	require.NotEmpty(t, pending.State)

	parsed, err := url.Parse(pending.FullRedirectURI)
	require.NoError(t, err)
	query := parsed.Query()
	require.Equal(t, "client-id", query.Get("client_id"))
	require.Equal(t, pending.State, query.Get("state"))
	require.Equal(t, "read:user", query.Get("scope"))
	require.Equal(t, "https://auth.example.com/oauth2/github/callback", query.Get("redirect_uri"))
}

func TestStartAuthorizationStatesAreUnique(t *testing.T) {
	h := newOAuthHarness(t)
	first := h.startPending(t)
	second := h.startPending(t)
	require.NotEqual(t, first.State, second.State)
}

func TestHandleCallbackMissingPending(t *testing.T) {
	h := newOAuthHarness(t)
	_, err := h.service.HandleCallback(context.Background(), nil, "state", "code")
	require.ErrorIs(t, err, domainoauth.ErrPendingRequestMissing)
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	h := newOAuthHarness(t)
	pending := h.startPending(t)

	_, err := h.service.HandleCallback(context.Background(), pending, "forged-state", "code")
	require.ErrorIs(t, err, domainoauth.ErrStateMismatch)

	_, err = h.service.HandleCallback(context.Background(), pending, "", "code")
	require.ErrorIs(t, err, domainoauth.ErrStateMismatch)
}

func TestHandleCallbackProvisionsMember(t *testing.T) {
	h := newOAuthHarness(t)
	h.provider.token = &domainoauth.TokenResponse{AccessToken: "gh-token", TokenType: "bearer"}
	h.provider.profile = &domainoauth.UserProfile{Provider: "github", UserID: "8217", AccessToken: "gh-token"}

	pending := h.startPending(t)
	result, err := h.service.HandleCallback(context.Background(), pending, pending.State, "code")
	require.NoError(t, err)
	require.Equal(t, "sign-in", result.Mode)
	require.NotEmpty(t, result.Tokens.AccessToken)

	claims, err := h.tokens.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, claims.Role)
	require.Equal(t, "github-8217@members.invalid", claims.Email)
	require.Equal(t, "github:8217", claims.Nickname)
	require.True(t, claims.IsActivated)
}

func TestHandleCallbackLinksExistingEmail(t *testing.T) {
	h := newOAuthHarness(t)
	hash, err := password.Hash("password1234")
	require.NoError(t, err)
	existing := domain.Member{
		ID:           uuid.New(),
		Email:        "dev@example.com",
		Nickname:     "dev",
		PasswordHash: hash,
		Role:         domain.RoleMember,
		IsActivated:  true,
	}
	h.data.putMember(existing)

	h.provider.token = &domainoauth.TokenResponse{AccessToken: "gh-token"}
	h.provider.profile = &domainoauth.UserProfile{Provider: "github", UserID: "99", Email: "dev@example.com", AccessToken: "gh-token"}

	pending := h.startPending(t)
	result, err := h.service.HandleCallback(context.Background(), pending, pending.State, "code")
	require.NoError(t, err)

	claims, err := h.tokens.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, existing.ID.String(), claims.Subject)
	require.Len(t, h.data.memberList(), 1)
}

func TestHandleCallbackUnmatchedEmailGetsSyntheticAddress(t *testing.T) {
	h := newOAuthHarness(t)
	h.provider.token = &domainoauth.TokenResponse{AccessToken: "gh-token"}
	h.provider.profile = &domainoauth.UserProfile{Provider: "github", UserID: "4242", Email: "real.person@example.com", AccessToken: "gh-token"}

	pending := h.startPending(t)
	result, err := h.service.HandleCallback(context.Background(), pending, pending.State, "code")
	require.NoError(t, err)

	// The provider email only matches existing accounts; a provisioned
	// member never persists it, so a later password signup with that
	// address stays free.
	claims, err := h.tokens.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "github-4242@members.invalid", claims.Email)

	members := h.data.memberList()
	require.Len(t, members, 1)
	require.Equal(t, "github-4242@members.invalid", members[0].Email)
}

func TestHandleCallbackIsIdempotent(t *testing.T) {
	h := newOAuthHarness(t)
	h.provider.token = &domainoauth.TokenResponse{AccessToken: "gh-token"}
	h.provider.profile = &domainoauth.UserProfile{Provider: "github", UserID: "8217", AccessToken: "gh-token"}

	pending := h.startPending(t)
	first, err := h.service.HandleCallback(context.Background(), pending, pending.State, "code")
	require.NoError(t, err)

	again := h.startPending(t)
	second, err := h.service.HandleCallback(context.Background(), again, again.State, "code")
	require.NoError(t, err)

	firstClaims, err := h.tokens.VerifyAccess(first.Tokens.AccessToken)
	require.NoError(t, err)
	secondClaims, err := h.tokens.VerifyAccess(second.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, firstClaims.Subject, secondClaims.Subject)
	require.Len(t, h.data.memberList(), 1)
}

func TestLinkerAdoptsConflictWinner(t *testing.T) {
	data := newMemoryData()
	winner := domain.Member{ID: uuid.New(), Email: "winner@example.com", Role: domain.RoleMember, IsActivated: true}
	data.putMember(winner)
	data.putIdentity(domain.FederatedIdentity{
		ID:             1,
		MemberID:       winner.ID,
		Provider:       "github",
		ProviderUserID: "8217",
	})
	// The first lookup misses, as if the competing request committed
	// between our read and our insert.
	data.hideIdentityOnce = true

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	linker := oauthsvc.NewLinker(&memoryTxManager{data: data}, node, zap.NewNop())

	member, err := linker.ResolveOrCreate(context.Background(), &domainoauth.UserProfile{
		Provider: "github",
		UserID:   "8217",
	})
	require.NoError(t, err)
	require.Equal(t, winner.ID, member.ID)
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	h := newOAuthHarness(t)
	h.provider.exchangeErr = fmt.Errorf("%w: status 500", domainoauth.ErrProviderComm)

	pending := h.startPending(t)
	_, err := h.service.HandleCallback(context.Background(), pending, pending.State, "code")
	require.ErrorIs(t, err, domainoauth.ErrProviderComm)
}

// ---- Fakes ----

type fakeProviderClient struct {
	token       *domainoauth.TokenResponse
	profile     *domainoauth.UserProfile
	exchangeErr error
	profileErr  error
}

func (f *fakeProviderClient) ExchangeCode(context.Context, string) (*domainoauth.TokenResponse, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if f.token == nil {
		return nil, fmt.Errorf("%w: token not configured", domainoauth.ErrProviderComm)
	}
	return f.token, nil
}

func (f *fakeProviderClient) FetchProfile(context.Context, string) (*domainoauth.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile == nil {
		return nil, fmt.Errorf("%w: profile not configured", domainoauth.ErrProfileFetch)
	}
	return f.profile, nil
}

type memoryData struct {
	mu               sync.Mutex
	members          map[uuid.UUID]domain.Member
	identities       map[string]domain.FederatedIdentity
	hideIdentityOnce bool
}

func newMemoryData() *memoryData {
	return &memoryData{
		members:    map[uuid.UUID]domain.Member{},
		identities: map[string]domain.FederatedIdentity{},
	}
}

func (d *memoryData) putMember(m domain.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
}

func (d *memoryData) putIdentity(identity domain.FederatedIdentity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities[identityKey(identity.Provider, identity.ProviderUserID)] = identity
}

func (d *memoryData) memberList() []domain.Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Member, 0, len(d.members))
	for _, member := range d.members {
		out = append(out, member)
	}
	return out
}

type memoryTxManager struct {
	data *memoryData
}

func (m *memoryTxManager) ReadOnly(context.Context) (repository.Store, error) {
	return &memoryStore{data: m.data}, nil
}

func (m *memoryTxManager) ReadWrite(context.Context) (repository.Store, error) {
	return &memoryStore{data: m.data}, nil
}

type memoryStore struct {
	data *memoryData
}

func (s *memoryStore) Members() repository.MemberRepository {
	return &memoryMemberRepo{data: s.data}
}

func (s *memoryStore) Identities() repository.FederatedIdentityRepository {
	return &memoryIdentityRepo{data: s.data}
}

func (s *memoryStore) Commit(context.Context) error   { return nil }
func (s *memoryStore) Rollback(context.Context) error { return nil }

type memoryMemberRepo struct {
	data *memoryData
}

func (r *memoryMemberRepo) FindByID(_ context.Context, id uuid.UUID) (domain.Member, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	if member, ok := r.data.members[id]; ok {
		return member, nil
	}
	return domain.Member{}, pgx.ErrNoRows
}

func (r *memoryMemberRepo) FindByEmail(_ context.Context, email string) (domain.Member, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	for _, member := range r.data.members {
		if strings.EqualFold(member.Email, email) {
			return member, nil
		}
	}
	return domain.Member{}, pgx.ErrNoRows
}

func (r *memoryMemberRepo) Insert(_ context.Context, member domain.Member) (domain.Member, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	for _, existing := range r.data.members {
		if strings.EqualFold(existing.Email, member.Email) {
			return domain.Member{}, &pgconn.PgError{Code: "23505", ConstraintName: "members_email_key"}
		}
	}
	r.data.members[member.ID] = member
	return member, nil
}

func (r *memoryMemberRepo) List(context.Context) ([]domain.Member, error) {
	return r.data.memberList(), nil
}

type memoryIdentityRepo struct {
	data *memoryData
}

func identityKey(provider, providerUserID string) string {
	return provider + "|" + providerUserID
}

func (r *memoryIdentityRepo) FindByProviderUserID(_ context.Context, provider, providerUserID string) (domain.FederatedIdentity, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	if r.data.hideIdentityOnce {
		r.data.hideIdentityOnce = false
		return domain.FederatedIdentity{}, pgx.ErrNoRows
	}
	if identity, ok := r.data.identities[identityKey(provider, providerUserID)]; ok {
		return identity, nil
	}
	return domain.FederatedIdentity{}, pgx.ErrNoRows
}

func (r *memoryIdentityRepo) Insert(_ context.Context, identity domain.FederatedIdentity) (domain.FederatedIdentity, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	key := identityKey(identity.Provider, identity.ProviderUserID)
	if _, ok := r.data.identities[key]; ok {
		return domain.FederatedIdentity{}, &pgconn.PgError{Code: "23505", ConstraintName: "federated_identities_provider_key"}
	}
	r.data.identities[key] = identity
	return identity, nil
}
