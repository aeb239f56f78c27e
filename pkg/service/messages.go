package service

import (
	"github.com/meridian-sim/meridian/pkg/kernel"
)

// StopRequest asks a daemon to stop. Graceful stops drain in-flight work
// first; brutal stops kill it with Cause.
type StopRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	Graceful  bool
	Cause     error
}

// DaemonStopped acknowledges a StopRequest once the daemon is about to
// exit its event loop.
type DaemonStopped struct {
	kernel.Payload
	Service string
}

// NewStopRequest builds a stop request with the default control size.
func NewStopRequest(reply *kernel.Commport, graceful bool, cause error) *StopRequest {
	return &StopRequest{
		Payload:   kernel.Payload{Bytes: DefaultControlMessageSize},
		ReplyPort: reply,
		Graceful:  graceful,
		Cause:     cause,
	}
}

// Stop sends a StopRequest from the calling actor and waits for the
// DaemonStopped acknowledgement.
func (b *Base) Stop(from *kernel.Actor, graceful bool, cause error) error {
	if err := b.AssertUp(); err != nil {
		return err
	}
	reply, err := b.k.NewCommport(from, b.name+"-stop-"+from.Name())
	if err != nil {
		return err
	}
	if err := from.Put(b.port, NewStopRequest(reply, graceful, cause)); err != nil {
		return err
	}
	if _, err := reply.Get(-1); err != nil {
		return err
	}
	return nil
}
