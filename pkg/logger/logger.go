package logger

import (
	"context"

	eh "github.com/looplab/eventhorizon"
	"github.com/sirupsen/logrus"
)

func Logger() *logrus.Entry {
	return logrus.StandardLogger().WithField("module", "consent-service")
}

// EventLogger observes every event on the bus and logs it at debug level.
type EventLogger struct{}

func (e EventLogger) HandlerType() eh.EventHandlerType {
	return eh.EventHandlerType("EventLogger")
}

func (e EventLogger) HandleEvent(ctx context.Context, event eh.Event) error {
	Logger().Debugf("[EventLogger]: %+v", event)
	return nil
}

func (e EventLogger) CommandLogger(h eh.CommandHandler) eh.CommandHandler {
	return eh.CommandHandlerFunc(func(ctx context.Context, command eh.Command) error {
		Logger().Debugf("CMD %#v", command)
		return h.HandleCommand(ctx, command)
	})
}
