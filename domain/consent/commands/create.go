package commands

import (
	"time"

	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"

	"github.com/privata-io/consent-service/domain"
)

const CreateCmdType = eh.CommandType("consent:create")

func init() {
	eh.RegisterCommand(func() eh.Command {
		return &Create{}
	})
}

// Create opens a new consent request in the pending state.
type Create struct {
	ID          uuid.UUID
	RequesterID string
	OwnerID     string
	Category    string
	Purpose     string
	ScopeFields []string
	ScopeFrom   time.Time
	ScopeTo     time.Time `eh:"optional"`
	AccessLevel string
	ExpiresAt   time.Time

	ProofID         string `eh:"optional"`
	CredentialID    string `eh:"optional"`
	ContentAddress  string `eh:"optional"`
	MetadataAddress string `eh:"optional"`
}

func (cmd Create) AggregateID() uuid.UUID {
	return cmd.ID
}

func (cmd Create) AggregateType() eh.AggregateType {
	return domain.ConsentAggregateType
}

func (cmd Create) CommandType() eh.CommandType {
	return CreateCmdType
}
