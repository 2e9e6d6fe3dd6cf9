package audit

import (
	"context"

	eh "github.com/looplab/eventhorizon"

	domainEvents "github.com/privata-io/consent-service/domain/events"
)

// Observer turns every committed consent transition into an audit record.
type Observer struct {
	Recorder Recorder
}

func (o Observer) HandlerType() eh.EventHandlerType {
	return eh.EventHandlerType("audit-observer")
}

func (o Observer) HandleEvent(ctx context.Context, event eh.Event) error {
	rec := Record{
		Action:   "consent." + string(event.EventType()),
		Resource: event.AggregateID().String(),
		Outcome:  OutcomeOK,
		At:       event.Timestamp(),
	}
	switch data := event.Data().(type) {
	case *domainEvents.CreatedData:
		rec.Actor = data.RequesterID
		rec.Detail = "category=" + data.Category
	case *domainEvents.RespondedData:
		rec.Actor = data.ActorID
		rec.Detail = data.Reason
	case *domainEvents.ExpiredData:
		rec.Actor = "system"
	case *domainEvents.SettlementData:
		rec.Actor = "system"
		rec.Detail = data.Reference
	default:
		return nil
	}
	Write(o.Recorder, rec)
	return nil
}
