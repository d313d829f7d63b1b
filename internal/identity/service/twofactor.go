package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/poolworks/identity/internal/identity/domain"
	"github.com/poolworks/identity/internal/identity/store"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeCount = 10                   // Number of backup codes to generate
	backupCodeBytes = cryptox.TokenSize128 // 128-bit entropy per backup code
)

var (
	ErrTwoFactorAlreadyVerified = errors.New("two-factor setup already completed")
	ErrTwoFactorNotEnrolled     = errors.New("two-factor not enrolled")
	ErrTwoFactorCodeMismatch    = errors.New("invalid TOTP code")
)

// TwoFactorService owns TOTP enrollment, verification and backup codes.
type TwoFactorService struct {
	Store  store.Store
	Issuer string // Issuer name shown in authenticator apps
}

// GenerateSecret creates TOTP enrollment material for a user who has not
// completed setup yet. The secret is stored immediately but the account only
// counts as protected once a code has been verified.
func (s *TwoFactorService) GenerateSecret(ctx context.Context, userID, account string) (domain.TOTPEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user.TwoFactorVerified {
		return domain.TOTPEnrollment{}, ErrTwoFactorAlreadyVerified
	}

	return s.enroll(ctx, userID, account)
}

// ResetEnrollment issues fresh TOTP material regardless of current state,
// clearing the verified flag and any outstanding backup codes. Used when a
// recovery flow completes: the old authenticator is assumed gone.
func (s *TwoFactorService) ResetEnrollment(ctx context.Context, userID, account string) (domain.TOTPEnrollment, error) {
	key, err := s.generateKey(account)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdateTwoFactorSecret(ctx, userID, key.Secret()); err != nil {
			return fmt.Errorf("failed to store secret: %w", err)
		}
		if err := tx.Users().SetTwoFactorVerified(ctx, userID, false); err != nil {
			return fmt.Errorf("failed to clear verified flag: %w", err)
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to drop backup codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}

	return domain.TOTPEnrollment{
		Secret:  key.Secret(),
		QRCode:  key.URL(),
		Issuer:  s.Issuer,
		Account: account,
	}, nil
}

// VerifyCode checks a TOTP code against the user's stored secret.
func (s *TwoFactorService) VerifyCode(ctx context.Context, userID, code string) (bool, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get user: %w", err)
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return false, ErrTwoFactorNotEnrolled
	}

	return totp.Validate(code, *user.TwoFactorSecret), nil
}

// GenerateBackupCodes replaces the user's backup code set and returns the
// plaintext codes. Only fingerprints are stored.
func (s *TwoFactorService) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range backupCodeCount {
		code, err := cryptox.RandomToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = code
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete old backup codes: %w", err)
		}
		for _, code := range codes {
			hash := cryptox.Fingerprint(code)
			if err := tx.BackupCodes().CreateBackupCode(ctx, userID, hash); err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// UseBackupCode consumes a backup code. Each code works exactly once.
func (s *TwoFactorService) UseBackupCode(ctx context.Context, userID, code string) (bool, error) {
	hash := cryptox.Fingerprint(code)

	ok, err := s.Store.BackupCodes().VerifyBackupCode(ctx, userID, hash)
	if err != nil {
		return false, fmt.Errorf("failed to verify backup code: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := s.Store.BackupCodes().DeleteBackupCode(ctx, userID, hash); err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return true, nil
}

func (s *TwoFactorService) enroll(ctx context.Context, userID, account string) (domain.TOTPEnrollment, error) {
	key, err := s.generateKey(account)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}

	if err := s.Store.Users().UpdateTwoFactorSecret(ctx, userID, key.Secret()); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to store secret: %w", err)
	}

	return domain.TOTPEnrollment{
		Secret:  key.Secret(),
		QRCode:  key.URL(),
		Issuer:  s.Issuer,
		Account: account,
	}, nil
}

func (s *TwoFactorService) generateKey(account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key, nil
}
