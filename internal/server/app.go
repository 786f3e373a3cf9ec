// Package server assembles and runs the authd daemon: configuration, the
// database pool with migrations, the token codec, both services, and the
// gRPC endpoint with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shelfmark/authd/internal/cryptox"
	"github.com/shelfmark/authd/internal/logging"
	"github.com/shelfmark/authd/internal/ratelimit"
	"github.com/shelfmark/authd/internal/server/config"
	gs "github.com/shelfmark/authd/internal/server/grpc"
	"github.com/shelfmark/authd/internal/server/repositories/repomanager"
	"github.com/shelfmark/authd/internal/server/services"
	"github.com/shelfmark/authd/internal/token"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	sessions  *services.SessionService
	passwords *services.PasswordService
	grpc      *gs.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	platformKeyPEM, err := os.ReadFile(cfg.PlatformPrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading platform private key: %w", err)
	}
	codec, err := token.NewCodec(cfg.SecretKey, cfg.TokenIssuer, cfg.TokenAudience,
		platformKeyPEM, cfg.PlatformIssuer, cfg.PlatformAudience)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	hasher := cryptox.NewBoundedHasher(int64(cfg.MaxConcurrentHashes))
	limiter := ratelimit.NewLimiter(map[string]ratelimit.Policy{
		services.ActionPasswordLogin:       {Threshold: 10, Window: 15 * time.Minute, Lockout: 15 * time.Minute},
		services.ActionPasswordCodeRequest: {Threshold: 3, Window: time.Hour, Lockout: time.Hour},
		services.ActionPasswordCodeVerify:  {Threshold: 5, Window: 15 * time.Minute, Lockout: time.Hour},
	})
	notifier := services.NewLogNotifier(logger)

	sessions := services.NewSessionService(db, rm, codec, cfg, logger)
	passwords := services.NewPasswordService(db, rm, hasher, limiter, notifier, cfg, logger)

	grpcServer := gs.NewServer(cfg.EndpointAddrGRPC, codec, logger)

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		sessions:  sessions,
		passwords: passwords,
		grpc:      grpcServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "starting authd")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err)
	}
	app.logger.Info(ctx, "stopped")
}
