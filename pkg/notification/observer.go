package notification

import (
	"context"

	eh "github.com/looplab/eventhorizon"

	domainEvents "github.com/privata-io/consent-service/domain/events"
	"github.com/privata-io/consent-service/pkg/logger"
)

// Observer forwards consent lifecycle events from the event bus to the sink.
// Both parties of a request get notified. Sink failures are logged, never
// propagated: delivery is best effort.
type Observer struct {
	Sink Sink
}

func (o Observer) HandlerType() eh.EventHandlerType {
	return eh.EventHandlerType("notification-observer")
}

func (o Observer) HandleEvent(ctx context.Context, event eh.Event) error {
	switch data := event.Data().(type) {
	case *domainEvents.CreatedData:
		payload := map[string]interface{}{
			"requestId": event.AggregateID().String(),
			"requester": data.RequesterID,
			"owner":     data.OwnerID,
			"category":  data.Category,
		}
		o.publish(data.OwnerID, "consent.requested", payload)
		o.publish(data.RequesterID, "consent.requested", payload)
	case *domainEvents.RespondedData:
		payload := map[string]interface{}{
			"requestId": event.AggregateID().String(),
			"requester": data.RequesterID,
			"owner":     data.OwnerID,
			"category":  data.Category,
			"reason":    data.Reason,
		}
		o.publish(data.OwnerID, "consent."+transitionName(event.EventType()), payload)
		o.publish(data.RequesterID, "consent."+transitionName(event.EventType()), payload)
	case *domainEvents.ExpiredData:
		payload := map[string]interface{}{
			"requestId": event.AggregateID().String(),
			"requester": data.RequesterID,
			"owner":     data.OwnerID,
			"category":  data.Category,
		}
		o.publish(data.OwnerID, "consent.expired", payload)
		o.publish(data.RequesterID, "consent.expired", payload)
	}
	return nil
}

func (o Observer) publish(recipient, eventType string, payload map[string]interface{}) {
	if err := o.Sink.Publish(recipient, eventType, payload); err != nil {
		logger.Logger().WithError(err).Warnf("could not publish %s to %s", eventType, recipient)
	}
}

func transitionName(t eh.EventType) string {
	switch t {
	case domainEvents.RequestApproved:
		return "approved"
	case domainEvents.RequestDenied:
		return "denied"
	case domainEvents.RequestRevoked:
		return "revoked"
	}
	return "updated"
}
