package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/poolworks/identity/internal/identity/notify"
	"github.com/poolworks/identity/internal/identity/service"
	"github.com/poolworks/identity/internal/identity/store"
	"github.com/poolworks/identity/internal/identity/store/drivers/sqlite"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/poolworks/identity/pkg/jwtx"
	"github.com/poolworks/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the identity subsystem together: durable store, outbound
// mail, and the recovery/registration/device/vault services.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	signer     *jwtx.Signer
	dispatcher *notify.Dispatcher

	// Services
	twoFactorService    *service.TwoFactorService
	recoveryService     *service.RecoveryService
	registrationService *service.RegistrationService
	deviceService       *service.DeviceService
	vaultService        *service.VaultService
	housekeepingService *service.HousekeepingService
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := jwtx.NewEphemeralSigner(app.cfg.Issuer)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}
	app.signer = signer

	if err := app.initNotifier(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx := context.Background()

	app.dispatcher.Start()
	app.housekeepingService.Start(ctx)

	app.logger.Info("identity service starting", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	// Stop producing new sweeps and flush whatever mail is queued.
	app.housekeepingService.Stop()
	app.dispatcher.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// Service accessors for an embedding transport layer.

func (app *Application) Recovery() *service.RecoveryService         { return app.recoveryService }
func (app *Application) Registration() *service.RegistrationService { return app.registrationService }
func (app *Application) Devices() *service.DeviceService            { return app.deviceService }
func (app *Application) Vault() *service.VaultService               { return app.vaultService }
func (app *Application) TwoFactor() *service.TwoFactorService       { return app.twoFactorService }

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

// initNotifier selects SMTP when configured, otherwise log-only delivery,
// and wraps it in the async dispatcher.
func (app *Application) initNotifier() error {
	var inner notify.Notifier

	if app.cfg.SMTPHost != "" {
		smtp, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     app.cfg.SMTPHost,
			Port:     app.cfg.SMTPPort,
			Username: app.cfg.SMTPUsername,
			Password: app.cfg.SMTPPassword,
			From:     app.cfg.SMTPFrom,
			FromName: "PoolWorks Identity",
			TLS:      true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize SMTP notifier: %w", err)
		}
		inner = smtp
	} else {
		app.logger.Warn("no SMTP host configured, outbound mail will be logged only")
		inner = &notify.LogNotifier{Logger: app.logger}
	}

	app.dispatcher = notify.NewDispatcher(inner, app.logger, app.cfg.NotifyQueueSize)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.twoFactorService = &service.TwoFactorService{
		Store:  app.db,
		Issuer: app.cfg.Issuer,
	}

	app.recoveryService = service.NewRecoveryService(
		app.db,
		app.dispatcher,
		app.twoFactorService,
		service.RecoveryConfig{
			AdminEmail:  app.cfg.AdminEmail,
			RequestTTL:  app.cfg.RecoveryTTL,
			MaxAttempts: app.cfg.RecoveryMaxAttempts,
		},
	)

	app.registrationService = service.NewRegistrationService(
		app.db,
		app.dispatcher,
		app.twoFactorService,
		app.cfg.AdminEmail,
	)

	app.deviceService = service.NewDeviceService(app.db)

	emergencyCode := app.cfg.EmergencyCode
	if emergencyCode == "" {
		// No configured code: seed a random one and log it once at startup.
		// Acceptable for dev; prod should always set IDENTITY_EMERGENCY_CODE.
		code, err := cryptox.RandomCode(16, cryptox.CodeAlphabet)
		if err == nil {
			emergencyCode = code
			app.logger.Warn("no emergency code configured, generated one", "code", code)
		}
	}
	app.vaultService = service.NewVaultService(
		app.dispatcher,
		app.signer,
		app.cfg.AdminEmail,
		emergencyCode,
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.logger,
		app.cfg.HousekeepingInterval,
		app.recoveryService,
	)
}
