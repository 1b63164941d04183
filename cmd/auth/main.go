package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/inkwell-auth/internal/adapter/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/bootstrap"
	"github.com/smallbiznis/inkwell-auth/internal/config"
	"github.com/smallbiznis/inkwell-auth/internal/cookie"
	httptransport "github.com/smallbiznis/inkwell-auth/internal/http"
	"github.com/smallbiznis/inkwell-auth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/inkwell-auth/internal/http/middleware"
	apimiddleware "github.com/smallbiznis/inkwell-auth/internal/middleware"
	"github.com/smallbiznis/inkwell-auth/internal/repository"
	"github.com/smallbiznis/inkwell-auth/internal/server"
	"github.com/smallbiznis/inkwell-auth/internal/service"
	oauthservice "github.com/smallbiznis/inkwell-auth/internal/service/oauth"
	"github.com/smallbiznis/inkwell-auth/internal/telemetry"
	"github.com/smallbiznis/inkwell-auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newTxManager,
			newTokenService,
			newCookieCodec,
			newProviderClient,
			newRateLimiter,
			service.NewAuthService,
			oauthservice.NewLinker,
			oauthservice.NewService,
			handler.NewAuthHandler,
			handler.NewMemberHandler,
			newSecurity,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTxManager(pool *pgxpool.Pool) repository.TxManager {
	return repository.NewPostgresTxManager(pool)
}

func newTokenService(cfg config.Config) *token.Service {
	return token.New(cfg)
}

func newCookieCodec(cfg config.Config) *cookie.Codec {
	return cookie.New(cfg.CookieSecret, cfg.IsProduction())
}

func newProviderClient(cfg config.Config) oauthadapter.ProviderClient {
	return oauthadapter.NewGithubClient(cfg, nil)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newSecurity(tokens *token.Service) *httpmiddleware.Security {
	return &httpmiddleware.Security{Tokens: tokens}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
