package consent

import (
	"time"

	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"

	"github.com/privata-io/consent-service/domain"
)

// Status is the lifecycle state of a consent request. Transitions follow
// pending -> {approved, denied, expired} and approved -> revoked; everything
// else is rejected.
type Status string

const (
	StatusPending  = Status("pending")
	StatusApproved = Status("approved")
	StatusDenied   = Status("denied")
	StatusRevoked  = Status("revoked")
	StatusExpired  = Status("expired")
)

// DataCategory is the closed set of personal data classes a request can ask
// for.
type DataCategory string

const (
	CategoryMedical   = DataCategory("medical")
	CategoryFinancial = DataCategory("financial")
	CategoryIdentity  = DataCategory("identity")
	CategoryEducation = DataCategory("education")
	CategoryLocation  = DataCategory("location")
	CategoryBiometric = DataCategory("biometric")
	CategoryCustom    = DataCategory("custom")
)

var categories = map[DataCategory]bool{
	CategoryMedical:   true,
	CategoryFinancial: true,
	CategoryIdentity:  true,
	CategoryEducation: true,
	CategoryLocation:  true,
	CategoryBiometric: true,
	CategoryCustom:    true,
}

// ParseCategory rejects anything outside the closed set.
func ParseCategory(s string) (DataCategory, error) {
	c := DataCategory(s)
	if !categories[c] {
		return "", domain.Validationf("unknown data category %q", s)
	}
	return c, nil
}

type AccessLevel string

const (
	AccessRead   = AccessLevel("read")
	AccessWrite  = AccessLevel("write")
	AccessDelete = AccessLevel("delete")
)

// ParseAccessLevel rejects anything outside the closed set.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch l := AccessLevel(s); l {
	case AccessRead, AccessWrite, AccessDelete:
		return l, nil
	}
	return "", domain.Validationf("unknown access level %q", s)
}

// AccessScope limits what an approved request may touch.
type AccessScope struct {
	Fields []string
	From   time.Time
	To     time.Time
	Level  AccessLevel
}

// ConsentRequest is the read model kept by the projector. It is never deleted;
// deactivation flips IsActive.
type ConsentRequest struct {
	ID          uuid.UUID
	RequesterID string
	OwnerID     string
	Category    DataCategory
	Purpose     string
	Scope       AccessScope
	Status      Status
	ExpiresAt   time.Time

	ProofID         string
	CredentialID    string
	ContentAddress  string
	MetadataAddress string

	CreatedAt      time.Time
	UpdatedAt      time.Time
	RespondedAt    *time.Time
	ResponseReason string
	RespondedBy    string

	SettlementRef string
	SettledAt     *time.Time

	IsActive bool
	Version  int
}

var _ = eh.Entity(&ConsentRequest{})
var _ = eh.Versionable(&ConsentRequest{})

func (r *ConsentRequest) EntityID() uuid.UUID {
	return r.ID
}

func (r *ConsentRequest) AggregateVersion() int {
	return r.Version
}

// ExpiredBy reports whether a still-pending request should be observed as
// expired at the given time.
func (r *ConsentRequest) ExpiredBy(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ExpiresAt)
}
