package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/inkwell-auth/internal/config"
	"github.com/smallbiznis/inkwell-auth/internal/domain"
	"github.com/smallbiznis/inkwell-auth/internal/password"
	"github.com/smallbiznis/inkwell-auth/internal/repository"
)

// EnsureAdmin seeds the configured admin member at startup when missing.
// Skipped entirely when ADMIN_EMAIL/ADMIN_PASSWORD are not set.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, txm repository.TxManager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, txm, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, txm repository.TxManager, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		return nil
	}

	store, err := txm.ReadWrite(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap begin tx: %w", err)
	}
	defer store.Rollback(ctx)

	if _, err := store.Members().FindByEmail(ctx, email); err == nil {
		return store.Commit(ctx)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	now := time.Now().UTC()
	admin := domain.Member{
		ID:           uuid.New(),
		Email:        email,
		Nickname:     "admin",
		PasswordHash: hashed,
		Role:         domain.RoleAdmin,
		IsActivated:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := store.Members().Insert(ctx, admin)
	if err != nil {
		// A racing replica may have seeded it first. The violation aborts
		// the transaction, so only the deferred rollback is valid here.
		if repository.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("bootstrap create admin: %w", err)
	}
	if err := store.Commit(ctx); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("bootstrap admin member created",
			zap.String("email", created.Email),
			zap.String("member_id", created.ID.String()),
		)
	}
	return nil
}
