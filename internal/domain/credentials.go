package domain

// Credentials holds per-venue secret material. The layer never persists
// credentials; they are supplied externally, already decrypted.
type Credentials struct {
	APIKey    string
	APISecret string
	// AccountID scopes account-oriented venues (IBKR paths are account-scoped).
	AccountID string
	// SessionToken carries a previously established session for
	// bearer-authenticated venues.
	SessionToken string
}

// String redacts all secret material so credentials can never leak
// through formatted logs or error messages.
func (c Credentials) String() string {
	return "credentials(redacted)"
}
