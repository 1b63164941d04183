package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/inkwell-auth/internal/config"
	"github.com/smallbiznis/inkwell-auth/internal/domain"
	"github.com/smallbiznis/inkwell-auth/internal/password"
	"github.com/smallbiznis/inkwell-auth/internal/repository"
	"github.com/smallbiznis/inkwell-auth/internal/service"
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
	}
}

func seedMember(t *testing.T, data *memoryData, email, pass string, role domain.Role) domain.Member {
	t.Helper()
	hash, err := password.Hash(pass)
	require.NoError(t, err)
	member := domain.Member{
		ID:           uuid.New(),
		Email:        email,
		Nickname:     strings.Split(email, "@")[0],
		PasswordHash: hash,
		Role:         role,
		IsActivated:  true,
	}
	data.putMember(member)
	return member
}

func TestLoginAndRefreshFlow(t *testing.T) {
	ctx := context.Background()
	data := newMemoryData()
	member := seedMember(t, data, "reader@example.com", "password1234", domain.RoleMember)

	tokens := token.New(testConfig())
	svc := service.NewAuthService(&memoryTxManager{data: data}, tokens, zap.NewNop())

	pair, err := svc.Login(ctx, "reader@example.com", "password1234")
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.Type)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, member.ID.String(), claims.Subject)
	require.Equal(t, domain.RoleMember, claims.Role)

	access, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	refreshed, err := tokens.VerifyAccess(access)
	require.NoError(t, err)
	require.Equal(t, member.ID.String(), refreshed.Subject)
}

func TestLoginUnknownEmail(t *testing.T) {
	data := newMemoryData()
	svc := service.NewAuthService(&memoryTxManager{data: data}, token.New(testConfig()), zap.NewNop())

	_, err := svc.Login(context.Background(), "nobody@example.com", "password1234")
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestLoginWrongPassword(t *testing.T) {
	data := newMemoryData()
	seedMember(t, data, "reader@example.com", "password1234", domain.RoleMember)
	svc := service.NewAuthService(&memoryTxManager{data: data}, token.New(testConfig()), zap.NewNop())

	_, err := svc.Login(context.Background(), "reader@example.com", "not-the-password")
	require.ErrorIs(t, err, domain.ErrEmailPasswordMismatch)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	data := newMemoryData()
	svc := service.NewAuthService(&memoryTxManager{data: data}, token.New(testConfig()), zap.NewNop())

	_, err := svc.Refresh(context.Background(), "not-a-token")
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	data := newMemoryData()
	seedMember(t, data, "reader@example.com", "password1234", domain.RoleMember)
	svc := service.NewAuthService(&memoryTxManager{data: data}, token.New(testConfig()), zap.NewNop())

	pair, err := svc.Login(ctx, "reader@example.com", "password1234")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefreshForDeletedMember(t *testing.T) {
	ctx := context.Background()
	data := newMemoryData()
	member := seedMember(t, data, "reader@example.com", "password1234", domain.RoleMember)
	svc := service.NewAuthService(&memoryTxManager{data: data}, token.New(testConfig()), zap.NewNop())

	pair, err := svc.Login(ctx, "reader@example.com", "password1234")
	require.NoError(t, err)

	data.deleteMember(member.ID)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestListMembers(t *testing.T) {
	data := newMemoryData()
	seedMember(t, data, "first@example.com", "password1234", domain.RoleMember)
	seedMember(t, data, "second@example.com", "password1234", domain.RoleAdmin)
	svc := service.NewAuthService(&memoryTxManager{data: data}, token.New(testConfig()), zap.NewNop())

	members, err := svc.ListMembers(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 2)
}

// ---- In-memory fakes ----

type memoryData struct {
	mu         sync.Mutex
	members    map[uuid.UUID]domain.Member
	identities map[string]domain.FederatedIdentity
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

func (d *memoryData) deleteMember(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members, id)
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
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	out := make([]domain.Member, 0, len(r.data.members))
	for _, member := range r.data.members {
		out = append(out, member)
	}
	return out, nil
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
