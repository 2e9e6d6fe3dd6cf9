package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"
	"github.com/stretchr/testify/assert"

	"github.com/privata-io/consent-service/domain"
	domainEvents "github.com/privata-io/consent-service/domain/events"
)

func TestObserver_HandleEvent(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	sink := NewMemorySink()
	observer := Observer{Sink: sink}

	created := eh.NewEventForAggregate(domainEvents.RequestCreated, &domainEvents.CreatedData{
		RequesterID: "analytics-corp",
		OwnerID:     "alice",
		Category:    "medical",
	}, now, domain.ConsentAggregateType, id, 1)
	assert.NoError(t, observer.HandleEvent(context.Background(), created))

	expired := eh.NewEventForAggregate(domainEvents.RequestExpired, &domainEvents.ExpiredData{
		At:          now,
		RequesterID: "analytics-corp",
		OwnerID:     "alice",
		Category:    "medical",
	}, now, domain.ConsentAggregateType, id, 2)
	assert.NoError(t, observer.HandleEvent(context.Background(), expired))

	assert.Len(t, sink.ByType("consent.requested"), 2)

	notified := sink.ByType("consent.expired")
	if assert.Len(t, notified, 2) {
		recipients := []string{notified[0].Recipient, notified[1].Recipient}
		assert.Contains(t, recipients, "alice")
		assert.Contains(t, recipients, "analytics-corp")
		assert.Equal(t, id.String(), notified[0].Payload["requestId"])
		assert.Equal(t, "medical", notified[0].Payload["category"])
	}
}

type failingSink struct{}

func (failingSink) Publish(string, string, map[string]interface{}) error {
	return errors.New("sink down")
}

func TestObserver_SinkFailureSwallowed(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	observer := Observer{Sink: failingSink{}}

	expired := eh.NewEventForAggregate(domainEvents.RequestExpired, &domainEvents.ExpiredData{
		At: now, RequesterID: "analytics-corp", OwnerID: "alice", Category: "medical",
	}, now, domain.ConsentAggregateType, uuid.New(), 1)

	assert.NoError(t, observer.HandleEvent(context.Background(), expired))
}
