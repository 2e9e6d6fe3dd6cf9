package domain

import (
	eh "github.com/looplab/eventhorizon"
)

const ConsentAggregateType = eh.AggregateType("consent-request")
