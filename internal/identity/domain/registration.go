package domain

import "time"

// Registration request status values. Pending requests transition exactly
// once, to approved or rejected; terminal records are retained for audit.
const (
	RegistrationPending  = "pending"
	RegistrationApproved = "approved"
	RegistrationRejected = "rejected"
)

type PendingRegistration struct {
	ID             string
	Email          string
	FullName       string
	Reason         string
	IPAddress      string
	AdditionalInfo string
	Status         string
	RequestDate    time.Time

	// Audit trail, set when the request reaches a terminal status.
	ReviewedBy      string
	ReviewedAt      time.Time
	RejectionReason string
}
