package consent

import (
	"context"

	eh "github.com/looplab/eventhorizon"
	"github.com/looplab/eventhorizon/eventhandler/projector"

	"github.com/privata-io/consent-service/domain"
	domainEvents "github.com/privata-io/consent-service/domain/events"
	"github.com/privata-io/consent-service/pkg/logger"
)

// RequestProjector keeps the ConsentRequest read model in sync with the
// aggregate's event stream.
type RequestProjector struct{}

func (p RequestProjector) ProjectorType() projector.Type {
	return projector.Type("consent-request-projector")
}

func (p RequestProjector) Project(ctx context.Context, event eh.Event, entity eh.Entity) (eh.Entity, error) {
	logger.Logger().Debugf("[RequestProjector] event: %v", event.EventType())

	model, ok := entity.(*ConsentRequest)
	if !ok {
		return nil, domain.Internalf("projection model is of incorrect type %T", entity)
	}

	switch event.EventType() {
	case domainEvents.RequestCreated:
		data, ok := event.Data().(*domainEvents.CreatedData)
		if !ok {
			return nil, domain.Internalf("event data of wrong type %T", event.Data())
		}
		model.ID = event.AggregateID()
		model.RequesterID = data.RequesterID
		model.OwnerID = data.OwnerID
		model.Category = DataCategory(data.Category)
		model.Purpose = data.Purpose
		model.Scope = AccessScope{
			Fields: data.ScopeFields,
			From:   data.ScopeFrom,
			To:     data.ScopeTo,
			Level:  AccessLevel(data.AccessLevel),
		}
		model.Status = StatusPending
		model.ExpiresAt = data.ExpiresAt
		model.ProofID = data.ProofID
		model.CredentialID = data.CredentialID
		model.ContentAddress = data.ContentAddress
		model.MetadataAddress = data.MetadataAddress
		model.CreatedAt = event.Timestamp()
		model.IsActive = true
	case domainEvents.RequestApproved:
		p.applyResponse(model, event, StatusApproved)
	case domainEvents.RequestDenied:
		p.applyResponse(model, event, StatusDenied)
	case domainEvents.RequestRevoked:
		p.applyResponse(model, event, StatusRevoked)
	case domainEvents.RequestExpired:
		model.Status = StatusExpired
	case domainEvents.SettlementAttached:
		data, ok := event.Data().(*domainEvents.SettlementData)
		if !ok {
			return nil, domain.Internalf("event data of wrong type %T", event.Data())
		}
		model.SettlementRef = data.Reference
		at := data.At
		model.SettledAt = &at
	default:
		logger.Logger().Debugf("[RequestProjector] skipping event: %v", event.EventType())
	}

	model.UpdatedAt = event.Timestamp()
	model.Version++
	return model, nil
}

func (p RequestProjector) applyResponse(model *ConsentRequest, event eh.Event, target Status) {
	model.Status = target
	if data, ok := event.Data().(*domainEvents.RespondedData); ok {
		at := data.At
		model.RespondedAt = &at
		model.ResponseReason = data.Reason
		model.RespondedBy = data.ActorID
	}
}
