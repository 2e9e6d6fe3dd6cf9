package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"
	"github.com/looplab/eventhorizon/aggregatestore/events"

	"github.com/privata-io/consent-service/domain"
	"github.com/privata-io/consent-service/domain/consent/commands"
	domainEvents "github.com/privata-io/consent-service/domain/events"
	"github.com/privata-io/consent-service/pkg/logger"
)

func init() {
	eh.RegisterAggregate(func(id uuid.UUID) eh.Aggregate {
		return &ConsentAggregate{
			AggregateBase: events.NewAggregateBase(domain.ConsentAggregateType, id),
		}
	})
}

// abstraction of time.Now() for testing
var TimeNow = func() time.Time {
	return time.Now()
}

// ConsentAggregate is the consistency boundary for a single consent request.
// It owns the transition graph: pending -> {approved, denied, expired} and
// approved -> revoked. Expiry is lazy: any command on a pending request whose
// deadline passed first forces the expired state before the command itself is
// evaluated.
type ConsentAggregate struct {
	*events.AggregateBase

	created       bool
	status        Status
	requesterID   string
	ownerID       string
	category      string
	expiresAt     time.Time
	settlementRef string
}

func (a *ConsentAggregate) HandleCommand(ctx context.Context, command eh.Command) error {
	logger.Logger().Debugf("[ConsentAggregate] command: %v", command.CommandType())

	now := TimeNow()
	a.expireIfOverdue(now)

	switch cmd := command.(type) {
	case *commands.Create:
		return a.create(cmd, now)
	case *commands.Approve:
		return a.respond(StatusApproved, cmd.ActorID, cmd.Reason, now)
	case *commands.Deny:
		return a.respond(StatusDenied, cmd.ActorID, cmd.Reason, now)
	case *commands.Revoke:
		return a.revoke(cmd, now)
	case *commands.Expire:
		// expireIfOverdue already did the work; overdue was the only reason
		// this command exists.
		return nil
	case *commands.AttachSettlement:
		return a.attachSettlement(cmd, now)
	}
	return domain.ErrUnknownCommand
}

func (a *ConsentAggregate) create(cmd *commands.Create, now time.Time) error {
	if a.created {
		return domain.InvalidStatef("consent request %s already exists", cmd.ID)
	}
	if cmd.RequesterID == "" || cmd.OwnerID == "" || cmd.Purpose == "" {
		return domain.Validationf("requester, owner and purpose are required")
	}
	if cmd.RequesterID == cmd.OwnerID {
		return domain.Validationf("requester and owner must differ")
	}
	if _, err := ParseCategory(cmd.Category); err != nil {
		return err
	}
	if _, err := ParseAccessLevel(cmd.AccessLevel); err != nil {
		return err
	}
	if len(cmd.ScopeFields) == 0 {
		return domain.Validationf("the access scope requires at least one field")
	}
	if cmd.ScopeFrom.IsZero() {
		return domain.Validationf("the access scope requires a start of its time range")
	}
	if !cmd.ExpiresAt.After(now) {
		return domain.Validationf("expiresAt must be in the future")
	}

	a.StoreEvent(domainEvents.RequestCreated, &domainEvents.CreatedData{
		ID:              cmd.ID,
		RequesterID:     cmd.RequesterID,
		OwnerID:         cmd.OwnerID,
		Category:        cmd.Category,
		Purpose:         cmd.Purpose,
		ScopeFields:     cmd.ScopeFields,
		ScopeFrom:       cmd.ScopeFrom,
		ScopeTo:         cmd.ScopeTo,
		AccessLevel:     cmd.AccessLevel,
		ExpiresAt:       cmd.ExpiresAt,
		ProofID:         cmd.ProofID,
		CredentialID:    cmd.CredentialID,
		ContentAddress:  cmd.ContentAddress,
		MetadataAddress: cmd.MetadataAddress,
	}, now)

	a.created = true
	a.status = StatusPending
	a.requesterID = cmd.RequesterID
	a.ownerID = cmd.OwnerID
	a.category = cmd.Category
	a.expiresAt = cmd.ExpiresAt
	return nil
}

func (a *ConsentAggregate) respond(target Status, actorID, reason string, now time.Time) error {
	if !a.created {
		return domain.InvalidStatef("consent request does not exist")
	}
	if a.status != StatusPending {
		return domain.InvalidStatef("cannot move a %s request to %s", a.status, target)
	}
	if actorID != a.ownerID {
		return domain.Forbiddenf("only the data owner may respond to a consent request")
	}

	eventType := domainEvents.RequestApproved
	if target == StatusDenied {
		eventType = domainEvents.RequestDenied
	}
	a.StoreEvent(eventType, &domainEvents.RespondedData{
		ActorID:     actorID,
		Reason:      reason,
		At:          now,
		RequesterID: a.requesterID,
		OwnerID:     a.ownerID,
		Category:    a.category,
	}, now)
	a.status = target
	return nil
}

func (a *ConsentAggregate) revoke(cmd *commands.Revoke, now time.Time) error {
	if !a.created {
		return domain.InvalidStatef("consent request does not exist")
	}
	if a.status != StatusApproved {
		return domain.InvalidStatef("cannot revoke a %s request", a.status)
	}
	if cmd.ActorID != a.ownerID {
		return domain.Forbiddenf("only the data owner may revoke a consent request")
	}

	a.StoreEvent(domainEvents.RequestRevoked, &domainEvents.RespondedData{
		ActorID:     cmd.ActorID,
		Reason:      cmd.Reason,
		At:          now,
		RequesterID: a.requesterID,
		OwnerID:     a.ownerID,
		Category:    a.category,
	}, now)
	a.status = StatusRevoked
	return nil
}

func (a *ConsentAggregate) attachSettlement(cmd *commands.AttachSettlement, now time.Time) error {
	if a.status != StatusApproved {
		return domain.InvalidStatef("cannot attach a settlement to a %s request", a.status)
	}
	if cmd.Reference == "" {
		return domain.Validationf("a settlement requires a reference")
	}
	if a.settlementRef != "" {
		// already settled, keep the first reference
		return nil
	}
	a.StoreEvent(domainEvents.SettlementAttached, &domainEvents.SettlementData{
		Reference: cmd.Reference,
		At:        now,
	}, now)
	a.settlementRef = cmd.Reference
	return nil
}

// expireIfOverdue stores the expired event when a pending request has passed
// its deadline. Only pending requests ever expire.
func (a *ConsentAggregate) expireIfOverdue(now time.Time) {
	if !a.created || a.status != StatusPending {
		return
	}
	if !now.After(a.expiresAt) {
		return
	}
	a.StoreEvent(domainEvents.RequestExpired, &domainEvents.ExpiredData{
		At:          now,
		RequesterID: a.requesterID,
		OwnerID:     a.ownerID,
		Category:    a.category,
	}, now)
	a.status = StatusExpired
}

func (a *ConsentAggregate) ApplyEvent(ctx context.Context, event eh.Event) error {
	switch event.EventType() {
	case domainEvents.RequestCreated:
		if data, ok := event.Data().(*domainEvents.CreatedData); ok {
			a.created = true
			a.status = StatusPending
			a.requesterID = data.RequesterID
			a.ownerID = data.OwnerID
			a.category = data.Category
			a.expiresAt = data.ExpiresAt
		}
	case domainEvents.RequestApproved:
		a.status = StatusApproved
	case domainEvents.RequestDenied:
		a.status = StatusDenied
	case domainEvents.RequestRevoked:
		a.status = StatusRevoked
	case domainEvents.RequestExpired:
		a.status = StatusExpired
	case domainEvents.SettlementAttached:
		if data, ok := event.Data().(*domainEvents.SettlementData); ok {
			a.settlementRef = data.Reference
		}
	}
	return nil
}
