package kernel

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/log"
)

type actorState int

const (
	actorLive actorState = iota
	actorDead
)

// wake carries the result of a blocking operation back into a resumed actor.
type wake struct {
	msg any
	idx int
	err error
}

// waiter represents one parked blocking operation. Whichever event fires it
// first (delivery, timer expiry, kill) wins; later events are no-ops.
type waiter struct {
	a      *Actor
	fired  bool
	onFire func()
}

// blockOp lets a kill detach the victim's current blocking operation.
type blockOp struct {
	cancel func()
}

// KilledError is returned from a blocking operation interrupted by Kill or
// by the owning host turning off. Cause carries the kill reason.
type KilledError struct {
	Cause error
}

func (e *KilledError) Error() string {
	return fmt.Sprintf("actor killed: %v", e.Cause)
}

func (e *KilledError) Unwrap() error { return e.Cause }

// Actor is a cooperatively scheduled simulated activity pinned to a host.
// An actor's function runs between yield points; it suspends only inside
// the blocking operations this package provides.
type Actor struct {
	k      *Kernel
	name   string
	host   *Host
	fn     func(*Actor) error
	logger zerolog.Logger

	resume chan wake
	parked bool
	state  actorState

	killed    bool
	killCause error
	blocking  *blockOp
	inflight  []*envelope

	suspended bool
	deferred  []wake

	lifesaver bool
}

// Suspend pauses the actor: wake-ups accumulate instead of resuming it
// until Resume. A no-op on dead actors.
func (a *Actor) Suspend() {
	if a.state == actorDead {
		return
	}
	a.suspended = true
}

// Resume lifts a suspension and delivers any wake-ups that accumulated, in
// the order they fired.
func (a *Actor) Resume() {
	if !a.suspended {
		return
	}
	a.suspended = false
	pending := a.deferred
	a.deferred = nil
	for _, w := range pending {
		w := w
		a.k.at(0, func() { a.k.dispatch(a, w) })
	}
}

func (a *Actor) dropInflight(env *envelope) {
	for i, e := range a.inflight {
		if e == env {
			a.inflight = append(a.inflight[:i], a.inflight[i+1:]...)
			return
		}
	}
}

// CreateActor spawns an actor on a host. The actor's function starts running
// at the current virtual time, after already-queued events.
func (k *Kernel) CreateActor(host *Host, name string, fn func(*Actor) error) (*Actor, error) {
	if host == nil {
		return nil, failure.NewInvalidArgument("actor %q: nil host", name)
	}
	if !host.on {
		return nil, &failure.HostError{Host: host.name}
	}
	a := &Actor{
		k:      k,
		name:   name,
		host:   host,
		fn:     fn,
		logger: log.WithActor(name),
		resume: make(chan wake),
		parked: true,
	}
	k.actors = append(k.actors, a)
	host.actors = append(host.actors, a)

	go func() {
		<-a.resume
		a.parked = false
		if a.killed {
			a.die()
			k.yielded <- struct{}{}
			return
		}
		if err := a.fn(a); err != nil && err != ErrSimulationEnded {
			a.logger.Debug().Err(err).Msg("Actor exited with error")
		}
		a.die()
		k.yielded <- struct{}{}
	}()

	k.at(0, func() { k.dispatch(a, wake{}) })
	return a, nil
}

func (a *Actor) die() {
	a.state = actorDead
	a.host.removeActor(a)
}

// Name returns the actor's name.
func (a *Actor) Name() string { return a.name }

// Host returns the host the actor is pinned to.
func (a *Actor) Host() *Host { return a.host }

// Kernel returns the kernel the actor runs on.
func (a *Actor) Kernel() *Kernel { return a.k }

// Killed reports whether the actor has been killed.
func (a *Actor) Killed() bool { return a.killed }

// CreateLifeSaver marks the actor as referenced by the kernel until it exits
// its main function. Creating two lifesavers for one actor is an error.
func (a *Actor) CreateLifeSaver() error {
	if a.lifesaver {
		return failure.NewInvalidArgument("actor %q already has a lifesaver", a.name)
	}
	a.lifesaver = true
	return nil
}

// Kill brutally terminates the actor: its pending blocking operation is
// aborted and returns a *KilledError carrying cause. Killing a dead or
// already-killed actor is a no-op.
func (a *Actor) Kill(cause error) {
	if a.state == actorDead || a.killed {
		return
	}
	a.killed = true
	a.killCause = cause
	// A kill overrides suspension; deferred wake-ups are moot once the
	// blocking operations behind them are aborted.
	a.suspended = false
	a.deferred = nil
	if a.blocking != nil {
		a.blocking.cancel()
		a.blocking = nil
	}
	for _, env := range a.inflight {
		env.aborted = true
	}
	a.inflight = nil
	k := a.k
	k.at(0, func() {
		k.dispatch(a, wake{err: &KilledError{Cause: cause}})
	})
}

// park suspends the actor until an event dispatches it.
func (a *Actor) park() wake {
	a.parked = true
	a.k.yielded <- struct{}{}
	return <-a.resume
}

// checkRunnable is the common prologue of every blocking operation.
func (a *Actor) checkRunnable() error {
	if a.k.stopped {
		return ErrSimulationEnded
	}
	if a.killed {
		return &KilledError{Cause: a.killCause}
	}
	return nil
}

// Now returns the current virtual time.
func (a *Actor) Now() float64 { return a.k.now }

// Sleep suspends the actor for dt seconds of virtual time.
func (a *Actor) Sleep(dt float64) error {
	if err := a.checkRunnable(); err != nil {
		return err
	}
	if dt < 0 {
		return failure.NewInvalidArgument("negative sleep duration %g", dt)
	}
	w := &waiter{a: a}
	a.blocking = &blockOp{cancel: func() { w.fired = true }}
	a.k.fireAt(w, dt, wake{})
	wk := a.park()
	a.blocking = nil
	return wk.err
}

// Yield gives up the CPU and resumes after all events at the current
// virtual time have run.
func (a *Actor) Yield() error {
	return a.Sleep(0)
}

// Compute blocks for flops/flopRate seconds of virtual time, the cost of
// executing flops of work on one core of the actor's host. It aborts with a
// *KilledError if the actor is killed or the host turns off.
func (a *Actor) Compute(flops float64) error {
	if flops < 0 {
		return failure.NewInvalidArgument("negative flop amount %g", flops)
	}
	if !a.host.on {
		return &failure.HostError{Host: a.host.name}
	}
	return a.Sleep(flops / a.host.speed)
}

// ComputeMulti blocks for the duration of an n-way parallel execution where
// thread i performs work[i] flops on its own core. The blocking time is the
// bottleneck thread's.
func (a *Actor) ComputeMulti(work []float64) error {
	if len(work) == 0 {
		return nil
	}
	max := work[0]
	for _, w := range work {
		if w < 0 {
			return failure.NewInvalidArgument("negative flop amount %g", w)
		}
		if w > max {
			max = w
		}
	}
	if !a.host.on {
		return &failure.HostError{Host: a.host.name}
	}
	return a.Sleep(max / a.host.speed)
}
