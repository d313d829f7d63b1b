package domain

import "time"

// Approval status values for user accounts.
const (
	ApprovalApproved = "APPROVED"
	ApprovalPending  = "PENDING"
	ApprovalRejected = "REJECTED"
)

// Role names known to the platform.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID                string
	Email             string
	Username          string
	FullName          string
	PasswordHash      string // argon2id encoded
	Role              string
	ApprovalStatus    string
	RequireTwoFactor  bool
	TwoFactorVerified bool
	TwoFactorSecret   *string // TOTP secret (nullable, base32 encoded)
	DeviceIDs         []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
