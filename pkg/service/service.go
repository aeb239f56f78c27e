package service

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/log"
)

// DefaultControlMessageSize is the simulated size in bytes of a control
// message when a service defines nothing more specific.
const DefaultControlMessageSize = 1024

// Base is the daemon backbone every simulated service embeds: a named
// actor pinned to a host, a request commport, and the up/down flag the
// stop protocol toggles.
type Base struct {
	name   string
	host   *kernel.Host
	k      *kernel.Kernel
	actor  *kernel.Actor
	port   *kernel.Commport
	up     bool
	logger zerolog.Logger
}

// NewBase builds the backbone for a service.
func NewBase(name string, host *kernel.Host) *Base {
	return &Base{
		name:   name,
		host:   host,
		logger: log.WithService(name),
	}
}

// Start spawns the service daemon. main is the service's event loop; it
// runs in the daemon's actor context with the request port already
// registered.
func (b *Base) Start(k *kernel.Kernel, main func() error) error {
	if b.actor != nil {
		return failure.NewInvalidArgument("service %q already started", b.name)
	}
	b.k = k
	actor, err := k.CreateActor(b.host, b.name, func(a *kernel.Actor) error {
		b.up = true
		err := main()
		b.up = false
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to start service %q: %w", b.name, err)
	}
	b.actor = actor
	if err := actor.CreateLifeSaver(); err != nil {
		return err
	}
	port, err := k.NewCommport(actor, b.name)
	if err != nil {
		return err
	}
	b.port = port
	return nil
}

// Name returns the service name.
func (b *Base) Name() string { return b.name }

// Host returns the host the daemon is pinned to.
func (b *Base) Host() *kernel.Host { return b.host }

// Kernel returns the kernel the daemon runs on.
func (b *Base) Kernel() *kernel.Kernel { return b.k }

// Actor returns the daemon actor, nil before Start.
func (b *Base) Actor() *kernel.Actor { return b.actor }

// Port returns the request commport, nil before Start.
func (b *Base) Port() *kernel.Commport { return b.port }

// RequestPortName returns the name of the request commport. It satisfies
// the job model's provider view of a service.
func (b *Base) RequestPortName() string { return b.name }

// Logger returns the service's child logger.
func (b *Base) Logger() zerolog.Logger { return b.logger }

// Up reports whether the daemon is accepting requests.
func (b *Base) Up() bool { return b.up }

// SetUp toggles the up flag; stop handlers use it to refuse new requests
// while draining.
func (b *Base) SetUp(up bool) { b.up = up }

// AssertUp returns a ServiceDown when the daemon is not accepting requests.
func (b *Base) AssertUp() error {
	if !b.up || b.actor == nil || b.actor.Killed() {
		return &failure.ServiceDown{Service: b.name}
	}
	return nil
}

// Suspend pauses the daemon until Resume; messages keep queueing on its
// port in the meantime.
func (b *Base) Suspend() {
	if b.actor != nil {
		b.actor.Suspend()
	}
}

// Resume lifts a Suspend.
func (b *Base) Resume() {
	if b.actor != nil {
		b.actor.Resume()
	}
}

// Kill brutally terminates the daemon actor.
func (b *Base) Kill(cause error) {
	if b.actor != nil {
		b.up = false
		b.actor.Kill(cause)
	}
}
