package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/smallbiznis/inkwell-auth/internal/domain"
	domainoauth "github.com/smallbiznis/inkwell-auth/internal/domain/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/password"
	"github.com/smallbiznis/inkwell-auth/internal/repository"
)

// errLostInsertRace signals that another request inserted the row we were
// about to create. A unique violation aborts the whole Postgres transaction,
// so the attempt is rolled back and rerun from scratch; the retry then finds
// the winner's rows.
var errLostInsertRace = errors.New("oauth: lost insert race")

const maxLinkAttempts = 3

// Linker maps a provider profile onto a local member, creating the member
// and the identity link on first sight.
type Linker struct {
	txm    repository.TxManager
	node   *snowflake.Node
	logger *zap.Logger
}

func NewLinker(txm repository.TxManager, node *snowflake.Node, logger *zap.Logger) *Linker {
	return &Linker{txm: txm, node: node, logger: logger}
}

// ResolveOrCreate returns the member owning the given provider identity.
// Resolution order: existing identity link, then a member with the same
// email, then a freshly provisioned member. Each attempt runs in its own
// read-write transaction; losing a unique-constraint race restarts the
// attempt so the winner's rows are used.
func (l *Linker) ResolveOrCreate(ctx context.Context, profile *domainoauth.UserProfile) (domain.Member, error) {
	var lastErr error
	for attempt := 0; attempt < maxLinkAttempts; attempt++ {
		member, err := l.resolveOnce(ctx, profile)
		if err == nil {
			return member, nil
		}
		if !errors.Is(err, errLostInsertRace) {
			return domain.Member{}, err
		}
		l.log().Info("identity insert lost race, retrying",
			zap.String("provider", profile.Provider),
			zap.String("provider_user_id", profile.UserID),
			zap.Int("attempt", attempt+1),
		)
		lastErr = err
	}
	return domain.Member{}, lastErr
}

func (l *Linker) resolveOnce(ctx context.Context, profile *domainoauth.UserProfile) (domain.Member, error) {
	store, err := l.txm.ReadWrite(ctx)
	if err != nil {
		return domain.Member{}, fmt.Errorf("begin link tx: %w", err)
	}
	defer store.Rollback(ctx)

	identity, err := store.Identities().FindByProviderUserID(ctx, profile.Provider, profile.UserID)
	switch {
	case err == nil:
		member, err := store.Members().FindByID(ctx, identity.MemberID)
		if err != nil {
			return domain.Member{}, fmt.Errorf("load linked member %s: %w", identity.MemberID, err)
		}
		if err := store.Commit(ctx); err != nil {
			return domain.Member{}, err
		}
		return member, nil
	case errors.Is(err, pgx.ErrNoRows):
		// first login for this provider account, fall through
	default:
		return domain.Member{}, fmt.Errorf("lookup identity: %w", err)
	}

	member, err := l.resolveMember(ctx, store, profile)
	if err != nil {
		return domain.Member{}, err
	}

	link := domain.FederatedIdentity{
		ID:             l.node.Generate().Int64(),
		MemberID:       member.ID,
		Provider:       profile.Provider,
		ProviderUserID: profile.UserID,
		Email:          profile.Email,
		AccessToken:    profile.AccessToken,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := store.Identities().Insert(ctx, link); err != nil {
		if repository.IsUniqueViolation(err) {
			return domain.Member{}, errLostInsertRace
		}
		return domain.Member{}, fmt.Errorf("insert identity: %w", err)
	}

	if err := store.Commit(ctx); err != nil {
		return domain.Member{}, err
	}
	l.log().Info("audit",
		zap.String("event", "oauth2.identity.linked"),
		zap.String("provider", profile.Provider),
		zap.String("member_id", member.ID.String()),
	)
	return member, nil
}

// resolveMember finds a member by the profile email or provisions a new one.
func (l *Linker) resolveMember(ctx context.Context, store repository.Store, profile *domainoauth.UserProfile) (domain.Member, error) {
	if email := strings.ToLower(strings.TrimSpace(profile.Email)); email != "" {
		member, err := store.Members().FindByEmail(ctx, email)
		switch {
		case err == nil:
			return member, nil
		case errors.Is(err, pgx.ErrNoRows):
			// no local account with that email yet
		default:
			return domain.Member{}, fmt.Errorf("lookup member by email: %w", err)
		}
	}
	return l.provisionMember(ctx, store, profile)
}

func (l *Linker) provisionMember(ctx context.Context, store repository.Store, profile *domainoauth.UserProfile) (domain.Member, error) {
	hash, err := password.RandomUnusable()
	if err != nil {
		return domain.Member{}, fmt.Errorf("seal federated password: %w", err)
	}

	now := time.Now().UTC()
	// Provisioned members always get a synthetic non-routable address,
	// even when the provider supplied a real one. The provider email only
	// drives the reuse lookup; persisting it here would let a later
	// password signup with that address collide with a federated account.
	member := domain.Member{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("%s-%s@members.invalid", profile.Provider, profile.UserID),
		Nickname:     fmt.Sprintf("%s:%s", profile.Provider, profile.UserID),
		PasswordHash: hash,
		Role:         domain.RoleMember,
		IsActivated:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	inserted, err := store.Members().Insert(ctx, member)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return domain.Member{}, errLostInsertRace
		}
		return domain.Member{}, fmt.Errorf("insert member: %w", err)
	}
	l.log().Info("audit",
		zap.String("event", "oauth2.member.provisioned"),
		zap.String("member_id", inserted.ID.String()),
		zap.String("provider", profile.Provider),
	)
	return inserted, nil
}

func (l *Linker) log() *zap.Logger {
	if l != nil && l.logger != nil {
		return l.logger
	}
	return zap.L()
}
