package service

import "errors"

// UserMessage converts an error from any identity service into the string a
// transport layer may show to the end user. State-integrity failures all
// collapse into one low-information message so a caller cannot distinguish
// "wrong code" from "unknown request ID" and enumerate accounts or request
// IDs. The distinct error values still reach the audit log.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRecoveryNotFound),
		errors.Is(err, ErrRecoveryExpired),
		errors.Is(err, ErrRecoveryAlreadyUsed),
		errors.Is(err, ErrRecoveryNotReady),
		errors.Is(err, ErrRecoveryCodeMismatch),
		errors.Is(err, ErrRecoveryTokenMismatch),
		errors.Is(err, ErrRecoveryPasswordMismatch),
		errors.Is(err, ErrTooManyAttempts),
		errors.Is(err, ErrAccountNotFound):
		return "invalid or expired request"
	case errors.Is(err, ErrEmergencyCodeMismatch),
		errors.Is(err, ErrEmergencyRateLimited):
		return "invalid code"
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrDuplicatePending),
		errors.Is(err, ErrInvalidEmail):
		return "unable to submit a registration request for this email"
	case errors.Is(err, ErrRegistrationNotFound),
		errors.Is(err, ErrRegistrationNotPending):
		return "registration request not found or already decided"
	case errors.Is(err, ErrUsernameTaken):
		return "unable to issue a username, please supply one"
	case errors.Is(err, ErrTwoFactorAlreadyVerified):
		return "two-factor setup has already been completed"
	case errors.Is(err, ErrTwoFactorNotEnrolled),
		errors.Is(err, ErrTwoFactorCodeMismatch):
		return "invalid verification code"
	case errors.Is(err, ErrDeviceNotFound):
		return "device not found or already removed"
	default:
		return "something went wrong, please try again later"
	}
}

// ErrAccountNotFound is shared by flows that look accounts up by identifier.
// Never surfaced verbatim: UserMessage folds it into the generic message.
var ErrAccountNotFound = errors.New("account not found")
