package domain

// TOTPEnrollment is the material a user needs to set up their authenticator
// app. The secret is returned exactly once, at enrollment time.
type TOTPEnrollment struct {
	Secret  string // Base32 encoded secret for TOTP
	QRCode  string // otpauth:// URL for QR code generation
	Issuer  string // Issuer name shown in the authenticator
	Account string // Account label (the user's email)
}
