package store

import (
	"context"
	"errors"

	"github.com/poolworks/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface for durable platform state: user
// accounts and their 2FA backup codes. Recovery requests, pending
// registrations, trusted devices and the emergency vault digest are
// deliberately NOT here - they live in process memory, owned by their
// services.
type Store interface {
	Users() Users
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store with explicit Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by email, case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByUsername is used to check username availability at issuance.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// ListUsers returns all users ordered by creation date (newest first).
	ListUsers(ctx context.Context) ([]domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateTwoFactorSecret sets the TOTP secret for a user.
	UpdateTwoFactorSecret(ctx context.Context, userID string, secret string) error

	// SetTwoFactorVerified flips the two_factor_verified flag.
	SetTwoFactorVerified(ctx context.Context, userID string, verified bool) error

	// UpdateDeviceIDs replaces the trusted device-ID list on the user record.
	UpdateDeviceIDs(ctx context.Context, userID string, deviceIDs []string) error

	// DeleteUser removes a user; cascades to backup_codes per schema.
	DeleteUser(ctx context.Context, userID string) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code fingerprint for a user.
	CreateBackupCode(ctx context.Context, userID string, codeHash string) error

	// VerifyBackupCode checks if a backup code fingerprint exists for a user.
	VerifyBackupCode(ctx context.Context, userID string, codeHash string) (bool, error)

	// DeleteBackupCode removes a specific backup code after use.
	DeleteBackupCode(ctx context.Context, userID string, codeHash string) error

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUserBackupCodes returns how many codes the user has left.
	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}
