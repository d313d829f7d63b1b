package domain

import "time"

// RecoveryRequest is the in-memory state for one 2FA-loss recovery attempt.
// It advances through four steps; each step proves possession of the secret
// minted by the previous one.
//
// EmailCodeHash holds the digest of the 6-character email code until step 2
// succeeds, then is cleared. ContinuationHash holds the digest of the step-2
// continuation token until step 3 succeeds. Two separate fields, so the stage
// of a request is obvious from its shape.
type RecoveryRequest struct {
	ID     string
	UserID string
	Email  string

	EmailCodeHash    string
	ContinuationHash string

	// PasswordHashSnapshot is a copy of the account's password hash taken at
	// step 1, compared against at step 3. A password change mid-recovery
	// therefore invalidates the flow.
	PasswordHashSnapshot string

	// Attempts counts failed code/password comparisons. The request is
	// refused outright once the budget is exhausted.
	Attempts int

	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the request has passed its deadline at time now.
// Checked eagerly on every access, not just by the background sweep.
func (r *RecoveryRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
