package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/inkwell-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ TxManager                   = (*PostgresTxManager)(nil)
	_ Store                       = (*pgStore)(nil)
	_ MemberRepository            = (*pgMemberRepo)(nil)
	_ FederatedIdentityRepository = (*pgIdentityRepo)(nil)
)

// PostgresTxManager opens read-only or read-write transactions on a pgx pool.
type PostgresTxManager struct {
	pool *pgxpool.Pool
}

func NewPostgresTxManager(pool *pgxpool.Pool) *PostgresTxManager {
	return &PostgresTxManager{pool: pool}
}

func (m *PostgresTxManager) ReadOnly(ctx context.Context) (Store, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	return &pgStore{tx: tx}, nil
}

func (m *PostgresTxManager) ReadWrite(ctx context.Context) (Store, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite, IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin read-write tx: %w", err)
	}
	return &pgStore{tx: tx}, nil
}

type pgStore struct {
	tx pgx.Tx
}

func (s *pgStore) Members() MemberRepository { return &pgMemberRepo{tx: s.tx} }

func (s *pgStore) Identities() FederatedIdentityRepository { return &pgIdentityRepo{tx: s.tx} }

func (s *pgStore) Commit(ctx context.Context) error {
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *pgStore) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// conflict. The linker treats it as "another request inserted first".
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type pgMemberRepo struct {
	tx pgx.Tx
}

const memberColumns = `id, email, nickname, password_hash, role, is_activated, created_at, updated_at`

func (r *pgMemberRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Member, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	member, err := scanMember(row)
	if err != nil {
		return domain.Member{}, fmt.Errorf("get member by id: %w", err)
	}
	return member, nil
}

func (r *pgMemberRepo) FindByEmail(ctx context.Context, email string) (domain.Member, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE email = $1`, email)
	member, err := scanMember(row)
	if err != nil {
		return domain.Member{}, fmt.Errorf("get member by email: %w", err)
	}
	return member, nil
}

const insertMemberSQL = `INSERT INTO members (id, email, nickname, password_hash, role, is_activated)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + memberColumns

func (r *pgMemberRepo) Insert(ctx context.Context, member domain.Member) (domain.Member, error) {
	row := r.tx.QueryRow(ctx, insertMemberSQL,
		member.ID,
		member.Email,
		member.Nickname,
		member.PasswordHash,
		member.Role.String(),
		member.IsActivated,
	)
	inserted, err := scanMember(row)
	if err != nil {
		return domain.Member{}, fmt.Errorf("insert member: %w", err)
	}
	return inserted, nil
}

func (r *pgMemberRepo) List(ctx context.Context) ([]domain.Member, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

type pgIdentityRepo struct {
	tx pgx.Tx
}

const identityColumns = `id, member_id, provider, provider_user_id, email, access_token, created_at`

func (r *pgIdentityRepo) FindByProviderUserID(ctx context.Context, provider, providerUserID string) (domain.FederatedIdentity, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM federated_identities WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	)
	identity, err := scanIdentity(row)
	if err != nil {
		return domain.FederatedIdentity{}, fmt.Errorf("get federated identity: %w", err)
	}
	return identity, nil
}

const insertIdentitySQL = `INSERT INTO federated_identities (id, member_id, provider, provider_user_id, email, access_token)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + identityColumns

func (r *pgIdentityRepo) Insert(ctx context.Context, identity domain.FederatedIdentity) (domain.FederatedIdentity, error) {
	row := r.tx.QueryRow(ctx, insertIdentitySQL,
		identity.ID,
		identity.MemberID,
		identity.Provider,
		identity.ProviderUserID,
		identity.Email,
		identity.AccessToken,
	)
	inserted, err := scanIdentity(row)
	if err != nil {
		return domain.FederatedIdentity{}, fmt.Errorf("insert federated identity: %w", err)
	}
	return inserted, nil
}

func scanMember(row pgx.Row) (domain.Member, error) {
	var (
		member domain.Member
		role   string
	)
	if err := row.Scan(
		&member.ID,
		&member.Email,
		&member.Nickname,
		&member.PasswordHash,
		&role,
		&member.IsActivated,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		return domain.Member{}, err
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return domain.Member{}, err
	}
	member.Role = parsed
	return member, nil
}

func scanIdentity(row pgx.Row) (domain.FederatedIdentity, error) {
	var identity domain.FederatedIdentity
	if err := row.Scan(
		&identity.ID,
		&identity.MemberID,
		&identity.Provider,
		&identity.ProviderUserID,
		&identity.Email,
		&identity.AccessToken,
		&identity.CreatedAt,
	); err != nil {
		return domain.FederatedIdentity{}, err
	}
	return identity, nil
}
