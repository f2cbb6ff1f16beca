package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oxkey/ident/internal/ident/service"
	"github.com/oxkey/ident/internal/ident/store"
	"github.com/oxkey/ident/internal/ident/store/drivers/sqlite"
	"github.com/oxkey/ident/pkg/credx"
	"github.com/oxkey/ident/pkg/cryptox"
	"github.com/oxkey/ident/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Collaborators are the external systems the engine consumes but does not
// own: account persistence, outbound email, provider token exchange. The
// embedding process (or the HTTP layer in front of this engine) supplies
// them.
type Collaborators struct {
	Accounts service.Accounts
	Email    service.EmailSender
	Exchange service.ProviderExchange
}

// Application wires the token and session lifecycle engine with all its
// dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	issuer *credx.Issuer

	// Services
	TokenService         *service.TokenService
	LockoutService       *service.LockoutService
	OAuthStateService    *service.OAuthStateService
	SessionService       *service.SessionService
	LoginService         *service.LoginService
	SignupService        *service.SignupService
	OAuthFlowService     *service.OAuthFlowService
	PasswordResetService *service.PasswordResetService

	housekeepingService *service.HousekeepingService
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config, collab Collaborators) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "ident",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	issuer, err := InitSigningKey(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing key: %w", err)
	}
	app.issuer = issuer

	app.initServices(collab)

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("ident engine started", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down ident engine...")

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("ident engine stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices(collab Collaborators) {
	app.TokenService = &service.TokenService{Store: app.db}

	app.LockoutService = service.NewLockoutService(app.db, app.cfg.LockoutThreshold, app.cfg.LockoutWindow)

	app.OAuthStateService = &service.OAuthStateService{
		Store: app.db,
		TTL:   app.cfg.StateTTL,
	}

	app.SessionService = &service.SessionService{
		Store:      app.db,
		Issuer:     app.issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}

	app.LoginService = &service.LoginService{
		Accounts:  collab.Accounts,
		Lockout:   app.LockoutService,
		Sessions:  app.SessionService,
		Issuer:    app.issuer,
		AccessTTL: app.cfg.AccessTTL,
	}

	app.SignupService = service.NewSignupService(
		app.TokenService,
		collab.Accounts,
		collab.Email,
		app.SessionService,
		app.issuer,
	)
	app.SignupService.AccessTTL = app.cfg.AccessTTL
	app.SignupService.VerificationTTL = app.cfg.VerificationTTL
	app.SignupService.ProfileTTL = app.cfg.ProfileTTL

	app.OAuthFlowService = &service.OAuthFlowService{
		States:       app.OAuthStateService,
		Exchange:     collab.Exchange,
		Accounts:     collab.Accounts,
		Sessions:     app.SessionService,
		Issuer:       app.issuer,
		Store:        app.db,
		Providers:    defaultProviders(),
		AccessTTL:    app.cfg.AccessTTL,
		ChallengeTTL: app.cfg.ChallengeTTL,
	}

	app.PasswordResetService = &service.PasswordResetService{
		Tokens:   app.TokenService,
		Accounts: collab.Accounts,
		Email:    collab.Email,
		ResetTTL: app.cfg.ResetTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}
