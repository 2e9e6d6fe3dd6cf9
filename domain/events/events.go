package events

import (
	"time"

	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"
)

const RequestCreated = eh.EventType("consent:request-created")
const RequestApproved = eh.EventType("consent:request-approved")
const RequestDenied = eh.EventType("consent:request-denied")
const RequestRevoked = eh.EventType("consent:request-revoked")
const RequestExpired = eh.EventType("consent:request-expired")
const SettlementAttached = eh.EventType("consent:settlement-attached")

// CreatedData captures the full request as submitted. Category and access
// level travel as plain strings so event payloads stay serialization friendly;
// the aggregate validates them against the closed sets before storing.
type CreatedData struct {
	ID          uuid.UUID
	RequesterID string
	OwnerID     string
	Category    string
	Purpose     string
	ScopeFields []string
	ScopeFrom   time.Time
	ScopeTo     time.Time
	AccessLevel string
	ExpiresAt   time.Time

	ProofID         string
	CredentialID    string
	ContentAddress  string
	MetadataAddress string
}

// RespondedData is shared by the approve, deny and revoke events. It repeats
// the parties and category so downstream handlers can notify without a read
// model lookup.
type RespondedData struct {
	ActorID     string
	Reason      string
	At          time.Time
	RequesterID string
	OwnerID     string
	Category    string
}

// ExpiredData repeats the parties and category so downstream handlers can
// notify without a read model lookup.
type ExpiredData struct {
	At          time.Time
	RequesterID string
	OwnerID     string
	Category    string
}

// SettlementData records the external settlement reference attached after an
// approval.
type SettlementData struct {
	Reference string
	At        time.Time
}

func init() {
	eh.RegisterEventData(RequestCreated, func() eh.EventData {
		return &CreatedData{}
	})
	eh.RegisterEventData(RequestApproved, func() eh.EventData {
		return &RespondedData{}
	})
	eh.RegisterEventData(RequestDenied, func() eh.EventData {
		return &RespondedData{}
	})
	eh.RegisterEventData(RequestRevoked, func() eh.EventData {
		return &RespondedData{}
	})
	eh.RegisterEventData(RequestExpired, func() eh.EventData {
		return &ExpiredData{}
	})
	eh.RegisterEventData(SettlementAttached, func() eh.EventData {
		return &SettlementData{}
	})
}
