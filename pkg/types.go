package pkg

import (
	"time"
)

// ScopeParams carries the requested access scope over the facade boundary.
type ScopeParams struct {
	Fields []string
	From   time.Time
	To     time.Time
	Level  string
}

// CreateConsentRequest is the facade-level request to open a consent flow.
type CreateConsentRequest struct {
	RequesterID string
	OwnerID     string
	Category    string
	Purpose     string
	Scope       ScopeParams
	ExpiresAt   time.Time

	ProofID         string
	CredentialID    string
	ContentAddress  string
	MetadataAddress string
}
