package processor

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

const (
	failureThreshold = 5.0
	failureDecay     = 30.0
	failureBackoff   = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// newSupervisor builds the supervisor running the services of one runtime.
// Supervisor events are written to logger.
func newSupervisor(name string, logger zerolog.Logger) *suture.Supervisor {
	return suture.New(name, suture.Spec{
		EventHook:        eventHook(logger),
		FailureThreshold: failureThreshold,
		FailureDecay:     failureDecay,
		FailureBackoff:   failureBackoff,
		Timeout:          shutdownTimeout,
	})
}

func eventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			ev = logger.Error()
		case suture.EventTypeBackoff:
			ev = logger.Warn()
		default:
			ev = logger.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}
