package simulation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridian-sim/meridian/pkg/events"
	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/log"
	"github.com/meridian-sim/meridian/pkg/platform"
	"github.com/meridian-sim/meridian/pkg/trace"
)

// Startable is any simulated service the simulation launches: compute
// services, storage services, file registries.
type Startable interface {
	Run(k *kernel.Kernel) error
	Name() string
}

// Simulation wires a platform, services and controllers together, owns the
// process-wide registries, and runs the kernel to completion.
type Simulation struct {
	k        *kernel.Kernel
	platform *platform.Platform
	broker   *events.Broker
	recorder *trace.Recorder
	logger   zerolog.Logger

	services    []Startable
	controllers []*controllerSpec

	trackedJobs []*job.CompoundJob

	seed       int64
	launched   bool
	terminated bool
}

type controllerSpec struct {
	host *kernel.Host
	name string
	fn   func(c *Controller) error
	ctrl *Controller
}

// Controller is the execution context handed to user controller code.
type Controller struct {
	sim   *Simulation
	actor *kernel.Actor
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithSeed sets the RNG seed; runs with equal seeds and inputs are
// identical.
func WithSeed(seed int64) Option {
	return func(s *Simulation) { s.seed = seed }
}

// WithTraceFile records the run into a bolt trace file at Terminate time.
func WithTraceFile(path string) Option {
	return func(s *Simulation) { s.recorder = trace.NewRecorder(path) }
}

// New builds a simulation over a platform and initializes the process-wide
// registries. Exactly one simulation exists at a time; Terminate clears
// the registries for the next one.
func New(p *platform.Platform, opts ...Option) (*Simulation, error) {
	if p == nil || len(p.Hosts()) == 0 {
		return nil, failure.NewInvalidArgument("simulation needs a platform with at least one host")
	}
	s := &Simulation{
		platform: p,
		broker:   events.NewBroker(),
		logger:   log.WithComponent("simulation"),
	}
	for _, o := range opts {
		o(s)
	}
	s.k = kernel.New(p, s.seed)
	if s.recorder != nil {
		s.broker.RegisterHandler(s.recorder.Handler())
	}
	initRegistries()
	return s, nil
}

// Kernel returns the simulation's kernel.
func (s *Simulation) Kernel() *kernel.Kernel { return s.k }

// Platform returns the platform description.
func (s *Simulation) Platform() *platform.Platform { return s.platform }

// Broker returns the simulation event broker.
func (s *Simulation) Broker() *events.Broker { return s.broker }

// HostByName looks up a simulated host.
func (s *Simulation) HostByName(name string) (*kernel.Host, error) {
	h, ok := s.k.HostByName(name)
	if !ok {
		return nil, failure.NewInvalidArgument("unknown host %q", name)
	}
	return h, nil
}

// AddService registers a service to be started at launch, in registration
// order.
func (s *Simulation) AddService(svc Startable) error {
	if s.launched {
		return failure.NewInvalidArgument("cannot add service %q after launch", svc.Name())
	}
	s.services = append(s.services, svc)
	return nil
}

// CreateController registers a controller actor to run on a host at
// virtual time zero.
func (s *Simulation) CreateController(host *kernel.Host, name string, fn func(c *Controller) error) error {
	if s.launched {
		return failure.NewInvalidArgument("cannot create controller %q after launch", name)
	}
	if host == nil || fn == nil {
		return failure.NewInvalidArgument("controller %q needs a host and a function", name)
	}
	s.controllers = append(s.controllers, &controllerSpec{host: host, name: name, fn: fn})
	return nil
}

// TrackJob includes a job in the end-of-run trace.
func (s *Simulation) TrackJob(j *job.CompoundJob) {
	s.trackedJobs = append(s.trackedJobs, j)
}

// TrackedJobs returns the jobs registered for tracing.
func (s *Simulation) TrackedJobs() []*job.CompoundJob { return s.trackedJobs }

// Launch starts every service and controller and runs the kernel until the
// event horizon. It returns once the simulation is over.
func (s *Simulation) Launch() error {
	if s.launched {
		return failure.NewInvalidArgument("simulation already launched")
	}
	s.launched = true

	for _, svc := range s.services {
		if err := svc.Run(s.k); err != nil {
			return fmt.Errorf("failed to launch service %q: %w", svc.Name(), err)
		}
	}
	for _, spec := range s.controllers {
		ctrl := &Controller{sim: s}
		spec.ctrl = ctrl
		actor, err := s.k.CreateActor(spec.host, spec.name, func(a *kernel.Actor) error {
			return spec.fn(ctrl)
		})
		if err != nil {
			return fmt.Errorf("failed to launch controller %q: %w", spec.name, err)
		}
		ctrl.actor = actor
	}

	s.logger.Info().
		Int("services", len(s.services)).
		Int("controllers", len(s.controllers)).
		Msg("Simulation launched")
	s.k.Run()
	s.logger.Info().Float64("vt", s.k.Now()).Msg("Simulation reached the event horizon")
	return nil
}

// Terminate flushes the trace, stops the broker and clears the
// process-wide registries. Safe to call once after Launch returns.
func (s *Simulation) Terminate() error {
	if s.terminated {
		return nil
	}
	s.terminated = true
	var firstErr error
	if s.recorder != nil {
		if err := s.recorder.Flush(s.trackedJobs); err != nil {
			firstErr = err
		}
	}
	if err := s.broker.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	clearRegistries()
	return firstErr
}

// Now returns the current virtual time.
func (s *Simulation) Now() float64 { return s.k.Now() }

// --- Controller context ---

// Actor returns the controller's actor.
func (c *Controller) Actor() *kernel.Actor { return c.actor }

// Simulation returns the owning simulation.
func (c *Controller) Simulation() *Simulation { return c.sim }

// Kernel returns the kernel.
func (c *Controller) Kernel() *kernel.Kernel { return c.sim.k }

// Now returns the current virtual time.
func (c *Controller) Now() float64 { return c.sim.k.Now() }

// Sleep suspends the controller.
func (c *Controller) Sleep(seconds float64) error { return c.actor.Sleep(seconds) }
