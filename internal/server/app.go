// Package server wires the Altair server together: Postgres authority,
// account, sync, triage and quest services, the gRPC endpoint, the routine
// scheduler and the Prometheus endpoint. Run blocks until a signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/quest"
	"github.com/dmitrijs2005/altair/internal/repositories/postgres"
	"github.com/dmitrijs2005/altair/internal/server/config"
	gs "github.com/dmitrijs2005/altair/internal/server/grpc"
	"github.com/dmitrijs2005/altair/internal/server/metrics"
	"github.com/dmitrijs2005/altair/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/altair/internal/server/routines"
	"github.com/dmitrijs2005/altair/internal/server/services"
	"github.com/dmitrijs2005/altair/internal/server/syncsvc"
	"github.com/dmitrijs2005/altair/internal/timex"
	"github.com/dmitrijs2005/altair/internal/triage"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    *postgres.Store
	metrics  *metrics.Metrics
	grpc     *gs.GRPCServer
	routines *routines.Runner
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stdout, c.LogLevel, "json")

	store, err := postgres.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	clock := timex.RealClock{}
	m := metrics.New()
	rm := repomanager.NewPostgresRepositoryManager()

	users := services.NewUserService(store.DB(), rm, clock, logger, services.UserServiceConfig{
		SecretKey:                    c.SecretKey,
		AccessTokenValidityDuration:  c.AccessTokenValidityDuration,
		RefreshTokenValidityDuration: c.RefreshTokenValidityDuration,
	})
	attachments := services.NewAttachmentService(store, clock, logger, services.S3Config{
		Region:        c.S3Region,
		RootUser:      c.S3RootUser,
		RootPassword:  c.S3RootPassword,
		BaseEndpoint:  c.S3BaseEndpoint,
		Bucket:        c.S3Bucket,
		PresignExpiry: c.PresignExpiry,
	})

	quests, authority := newEnergyServices(store, loc, c.DefaultDailyBudget, clock, logger)

	srv := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Deps{
		Users:       users,
		Sync:        syncsvc.NewService(authority, clock, logger, m),
		Triage:      triage.NewEngine(store, clock, logger),
		Quests:      quests,
		Attachments: attachments,
		Metrics:     m,
	})

	return &App{
		config:   c,
		logger:   logger,
		store:    store,
		metrics:  m,
		grpc:     srv,
		routines: routines.NewRunner(store, rm.Users(store.DB()), clock, logger, m),
	}, nil
}

// newEnergyServices builds the quest controller and the sync authority on
// one calendar, so a completion is charged to the same day whether it comes
// in as an RPC or as a pushed record.
func newEnergyServices(store *postgres.Store, loc *time.Location, defaultBudget int, clock timex.Clock, logger logging.Logger) (*quest.Controller, *postgres.Authority) {
	quests := quest.NewController(store, clock, logger)
	quests.Location = loc
	quests.DefaultBudget = defaultBudget

	authority := postgres.NewAuthority(store)
	authority.Location = loc
	authority.DefaultBudget = defaultBudget
	return quests, authority
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startMetricsServer(ctx context.Context) error {
	if app.config.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// stops every component and closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	if err := app.routines.Start(ctx, app.config.RoutineInterval); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(gctx) })
	g.Go(func() error { return app.startMetricsServer(gctx) })

	err := g.Wait()

	if stopErr := app.routines.Stop(); stopErr != nil {
		app.logger.Warn(ctx, "stop routines", "error", stopErr)
	}
	if closeErr := app.store.Close(); closeErr != nil {
		app.logger.Warn(ctx, "close db", "error", closeErr)
	}
	app.logger.Info(ctx, "App stopped")
	return err
}
