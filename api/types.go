package api

import "time"

// CreateConsentRequest is the public shape for opening a consent request.
type CreateConsentRequest struct {
	RequesterID string     `json:"requesterId"`
	OwnerID     string     `json:"ownerId"`
	Category    string     `json:"category"`
	Purpose     string     `json:"purpose"`
	Scope       AccessScope `json:"scope"`
	ExpiresAt   time.Time  `json:"expiresAt"`

	ProofID         string `json:"proofId,omitempty"`
	CredentialID    string `json:"credentialId,omitempty"`
	ContentAddress  string `json:"contentAddress,omitempty"`
	MetadataAddress string `json:"metadataAddress,omitempty"`
}

// AccessScope limits what an approved request may touch.
type AccessScope struct {
	Fields []string  `json:"fields"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to,omitempty"`
	Level  string    `json:"level"`
}

// RespondRequest carries the owner's response to a pending request.
type RespondRequest struct {
	ActorID string `json:"actorId"`
	Reason  string `json:"reason,omitempty"`
}

// ConsentRequestResponse is the public view of a consent request.
type ConsentRequestResponse struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requesterId"`
	OwnerID     string     `json:"ownerId"`
	Category    string     `json:"category"`
	Purpose     string     `json:"purpose"`
	Scope       AccessScope `json:"scope"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`

	RespondedAt    *time.Time `json:"respondedAt,omitempty"`
	RespondedBy    string     `json:"respondedBy,omitempty"`
	ResponseReason string     `json:"responseReason,omitempty"`
	SettlementRef  string     `json:"settlementRef,omitempty"`
}

// VerificationRequest bundles the factors for one multi-factor run.
type VerificationRequest struct {
	IdentityName    string `json:"identityName"`
	IdentityAddress string `json:"identityAddress"`

	ProofID        string `json:"proofId,omitempty"`
	AccessUserID   string `json:"accessUserId,omitempty"`
	AccessDataType string `json:"accessDataType,omitempty"`
	AccessLevel    string `json:"accessLevel,omitempty"`

	PresentationID string `json:"presentationId,omitempty"`
	Challenge      string `json:"challenge,omitempty"`
	ContentAddress string `json:"contentAddress,omitempty"`
}

// VerificationCheck is one gate outcome of a composite run.
type VerificationCheck struct {
	Gate   string `json:"gate"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// VerificationResponse is the composite verification outcome.
type VerificationResponse struct {
	ID         string              `json:"id"`
	Passed     bool                `json:"passed"`
	FailedGate string              `json:"failedGate,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Checks     []VerificationCheck `json:"checks"`
	VerifiedAt time.Time           `json:"verifiedAt"`
}

// StoreContentRequest carries a payload to encrypt and store.
type StoreContentRequest struct {
	Payload  []byte `json:"payload"`
	OwnerID  string `json:"ownerId"`
	Category string `json:"category"`
}

// StoreContentResponse returns the addresses of the stored blobs.
type StoreContentResponse struct {
	DataAddress     string `json:"dataAddress"`
	MetadataAddress string `json:"metadataAddress"`
}

// RetrieveContentResponse returns a decrypted payload with its metadata.
type RetrieveContentResponse struct {
	Payload   []byte    `json:"payload"`
	Algorithm string    `json:"algorithm"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}
