package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/smallbiznis/inkwell-auth/internal/domain"
)

// Store bundles the repositories bound to a single transaction. Every inbound
// request owns at most one Store for the lifetime of its handler.
type Store interface {
	Members() MemberRepository
	Identities() FederatedIdentityRepository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxManager begins request-scoped transactions.
type TxManager interface {
	ReadOnly(ctx context.Context) (Store, error)
	ReadWrite(ctx context.Context) (Store, error)
}

// MemberRepository exposes persistence for members.
type MemberRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.Member, error)
	FindByEmail(ctx context.Context, email string) (domain.Member, error)
	Insert(ctx context.Context, member domain.Member) (domain.Member, error)
	List(ctx context.Context) ([]domain.Member, error)
}

// FederatedIdentityRepository persists provider-account links.
type FederatedIdentityRepository interface {
	FindByProviderUserID(ctx context.Context, provider, providerUserID string) (domain.FederatedIdentity, error)
	Insert(ctx context.Context, identity domain.FederatedIdentity) (domain.FederatedIdentity, error)
}
