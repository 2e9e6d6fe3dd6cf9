package commands

import (
	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"

	"github.com/privata-io/consent-service/domain"
)

const ExpireCmdType = eh.CommandType("consent:expire")
const AttachSettlementCmdType = eh.CommandType("consent:attach-settlement")

func init() {
	eh.RegisterCommand(func() eh.Command {
		return &Expire{}
	})
	eh.RegisterCommand(func() eh.Command {
		return &AttachSettlement{}
	})
}

// Expire forces a pending request past its deadline into the expired state.
// It is issued by readers that observe a stale pending request, never by an
// external actor, and no-ops on anything not pending.
type Expire struct {
	ID uuid.UUID
}

func (cmd Expire) AggregateID() uuid.UUID {
	return cmd.ID
}

func (cmd Expire) AggregateType() eh.AggregateType {
	return domain.ConsentAggregateType
}

func (cmd Expire) CommandType() eh.CommandType {
	return ExpireCmdType
}

// AttachSettlement records the external settlement reference produced for an
// approval. Emitted by the settlement saga.
type AttachSettlement struct {
	ID        uuid.UUID
	Reference string
}

func (cmd AttachSettlement) AggregateID() uuid.UUID {
	return cmd.ID
}

func (cmd AttachSettlement) AggregateType() eh.AggregateType {
	return domain.ConsentAggregateType
}

func (cmd AttachSettlement) CommandType() eh.CommandType {
	return AttachSettlementCmdType
}
