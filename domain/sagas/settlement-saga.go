package sagas

import (
	"context"

	eh "github.com/looplab/eventhorizon"
	"github.com/looplab/eventhorizon/eventhandler/saga"

	"github.com/privata-io/consent-service/domain/consent/commands"
	"github.com/privata-io/consent-service/domain/events"
	"github.com/privata-io/consent-service/pkg/logger"
	"github.com/privata-io/consent-service/pkg/settlement"
)

const SettlementSagaType = saga.Type("consent-settlement-saga")

// SettlementSaga reacts to an approval by recording it with the external
// settlement layer and attaching the resulting transaction reference to the
// request.
type SettlementSaga struct {
	Recorder settlement.Recorder
}

func (s SettlementSaga) SagaType() saga.Type {
	return SettlementSagaType
}

func (s SettlementSaga) RunSaga(ctx context.Context, event eh.Event) []eh.Command {
	if event.EventType() != events.RequestApproved {
		return nil
	}

	receipt, err := s.Recorder.RecordApproval(ctx, event.AggregateID())
	if err != nil {
		// the approval itself already committed; a missing settlement
		// reference is diagnosed, not rolled back
		logger.Logger().WithError(err).Errorf("settlement recording failed for %s", event.AggregateID())
		return nil
	}

	return []eh.Command{&commands.AttachSettlement{
		ID:        event.AggregateID(),
		Reference: receipt.Reference,
	}}
}
