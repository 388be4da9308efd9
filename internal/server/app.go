// Package server initializes and runs the attendance server. It wires the
// repositories, roster and selfie storage, the services and the gRPC
// endpoint, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/server/blob"
	"github.com/dmitrijs2005/rollkeeper/internal/server/config"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"github.com/dmitrijs2005/rollkeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/rollkeeper/internal/server/grpc"
)

// Object key prefixes used with the s3 storage backend.
const (
	rosterPrefix = "rosters"
	selfiePrefix = "selfies"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	reconciler *services.Reconciler
	services   gs.Services
}

// NewApp opens storage, applies migrations and constructs the services.
// A DatabaseDSN of config.MemoryDSN keeps all state in process memory.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {

	var (
		db  *sql.DB
		rm  repomanager.RepositoryManager
		err error
	)

	if c.DatabaseDSN == config.MemoryDSN {
		rm = repomanager.NewMemoryRepositoryManager()
	} else {
		db, err = sql.Open("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("db ping error: %w", err)
		}
		rm = repomanager.NewPostgresRepositoryManager()
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, blobs, err := openStores(ctx, c)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	r := services.NewReconciler(db, rm, store, logger)
	svc := gs.Services{
		Sessions:   services.NewSessionService(db, rm, r, c, logger),
		Ledger:     services.NewLedgerService(db, rm, r, blobs, c, logger),
		Imports:    services.NewImportService(db, rm, r, logger),
		Reconciler: r,
	}

	return &App{config: c, logger: logger, db: db, reconciler: r, services: svc}, nil
}

// openStores builds the roster artifact store and the selfie blob store for
// the configured backend.
func openStores(ctx context.Context, c *config.Config) (roster.Store, blob.Store, error) {
	switch c.StorageBackend {
	case config.StorageLocal:
		store, err := roster.NewFileStore(filepath.Join(c.StorageDir, rosterPrefix))
		if err != nil {
			return nil, nil, fmt.Errorf("roster store init error: %w", err)
		}
		blobs, err := blob.NewLocalStore(c.StorageDir, selfiePrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("blob store init error: %w", err)
		}
		return store, blobs, nil
	case config.StorageS3:
		client, err := blob.NewS3Client(ctx, blob.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 client init error: %w", err)
		}
		return roster.NewS3Store(client, c.S3Bucket, rosterPrefix), blob.NewS3Store(client, c.S3Bucket, selfiePrefix), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

// Reconciler exposes the roster reconciler for operator tooling.
func (app *App) Reconciler() *services.Reconciler {
	return app.reconciler
}

// Close waits for pending roster jobs and releases the database.
func (app *App) Close() {
	app.reconciler.Wait()
	closeDB(app.db)
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.services, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}
