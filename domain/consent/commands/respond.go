package commands

import (
	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"

	"github.com/privata-io/consent-service/domain"
)

const ApproveCmdType = eh.CommandType("consent:approve")
const DenyCmdType = eh.CommandType("consent:deny")
const RevokeCmdType = eh.CommandType("consent:revoke")

func init() {
	eh.RegisterCommand(func() eh.Command {
		return &Approve{}
	})
	eh.RegisterCommand(func() eh.Command {
		return &Deny{}
	})
	eh.RegisterCommand(func() eh.Command {
		return &Revoke{}
	})
}

// Approve moves a pending request to approved. Only the data owner may issue
// it.
type Approve struct {
	ID      uuid.UUID
	ActorID string
	Reason  string `eh:"optional"`
}

func (cmd Approve) AggregateID() uuid.UUID {
	return cmd.ID
}

func (cmd Approve) AggregateType() eh.AggregateType {
	return domain.ConsentAggregateType
}

func (cmd Approve) CommandType() eh.CommandType {
	return ApproveCmdType
}

// Deny moves a pending request to denied.
type Deny struct {
	ID      uuid.UUID
	ActorID string
	Reason  string `eh:"optional"`
}

func (cmd Deny) AggregateID() uuid.UUID {
	return cmd.ID
}

func (cmd Deny) AggregateType() eh.AggregateType {
	return domain.ConsentAggregateType
}

func (cmd Deny) CommandType() eh.CommandType {
	return DenyCmdType
}

// Revoke withdraws a previously approved request.
type Revoke struct {
	ID      uuid.UUID
	ActorID string
	Reason  string `eh:"optional"`
}

func (cmd Revoke) AggregateID() uuid.UUID {
	return cmd.ID
}

func (cmd Revoke) AggregateType() eh.AggregateType {
	return domain.ConsentAggregateType
}

func (cmd Revoke) CommandType() eh.CommandType {
	return RevokeCmdType
}
