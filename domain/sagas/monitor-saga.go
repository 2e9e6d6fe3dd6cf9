package sagas

import (
	"context"

	eh "github.com/looplab/eventhorizon"
	"github.com/looplab/eventhorizon/eventhandler/saga"

	"github.com/privata-io/consent-service/domain/events"
	"github.com/privata-io/consent-service/pkg/anomaly"
)

const MonitorSagaType = saga.Type("consent-monitor-saga")

// MonitorSaga makes sure every data owner touched by a request has an
// anomaly profile for the requested category, so the next sweep picks the
// owner up.
type MonitorSaga struct {
	Profiles *anomaly.Store
}

func (s MonitorSaga) SagaType() saga.Type {
	return MonitorSagaType
}

func (s MonitorSaga) RunSaga(ctx context.Context, event eh.Event) []eh.Command {
	if event.EventType() != events.RequestCreated {
		return nil
	}
	data, ok := event.Data().(*events.CreatedData)
	if !ok {
		return nil
	}
	s.Profiles.Ensure(data.OwnerID, data.Category)
	return nil
}
