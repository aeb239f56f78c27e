package kernel

import (
	"github.com/meridian-sim/meridian/pkg/failure"
)

// Message is anything exchanged over a commport. PayloadSize drives the
// simulated network cost of the transfer.
type Message interface {
	PayloadSize() float64
}

// Payload is the embeddable base for service messages; Bytes is the
// simulated on-wire size.
type Payload struct {
	Bytes float64
}

// PayloadSize implements Message.
func (p Payload) PayloadSize() float64 { return p.Bytes }

// Commport is a named receive queue owned by one actor. Only the owner
// receives; any actor may send. Delivery between a fixed sender/receiver
// pair is FIFO; nothing is guaranteed across pairs.
type Commport struct {
	k     *Kernel
	name  string
	owner *Actor

	queue     []*envelope
	recv      *waiter
	asyncRecv []*Pending

	lastArrival map[string]float64
}

type envelope struct {
	msg        Message
	sender     *Actor
	ack        *waiter  // blocking Put: fired when the receiver consumes
	ackPending *Pending // IPut: completed when the receiver consumes
	aborted    bool     // sender was killed with this message in flight
}

// NewCommport registers a named port owned by the calling actor. Names are
// unique per simulation.
func (k *Kernel) NewCommport(owner *Actor, name string) (*Commport, error) {
	if owner == nil {
		return nil, failure.NewInvalidArgument("commport %q: nil owner", name)
	}
	if _, dup := k.ports[name]; dup {
		return nil, failure.NewInvalidArgument("duplicate commport name %q", name)
	}
	p := &Commport{k: k, name: name, owner: owner, lastArrival: make(map[string]float64)}
	k.ports[name] = p
	return p, nil
}

// PortByName looks up a registered commport.
func (k *Kernel) PortByName(name string) (*Commport, bool) {
	p, ok := k.ports[name]
	return p, ok
}

// Name returns the port name.
func (p *Commport) Name() string { return p.name }

// Owner returns the owning actor.
func (p *Commport) Owner() *Actor { return p.owner }

// reachable verifies the destination end is able to receive.
func (p *Commport) reachable() error {
	if p.owner.state == actorDead {
		return &failure.NetworkError{Port: p.name, Reason: "receiver is dead"}
	}
	if !p.owner.host.on {
		return &failure.NetworkError{Port: p.name, Reason: "host " + p.owner.host.name + " is off"}
	}
	return nil
}

// send schedules delivery of msg to p from actor a. Exactly one of ack /
// ackPending may be set; both nil means fire-and-forget.
func (a *Actor) send(p *Commport, msg Message, ack *waiter, ackPending *Pending) error {
	// A killed actor may still send on its way out (termination hooks emit
	// their final notification), so only the stopped kernel and host state
	// gate the send.
	if a.k.stopped {
		return ErrSimulationEnded
	}
	if !a.host.on {
		return &failure.NetworkError{Port: p.name, Reason: "sender host " + a.host.name + " is off"}
	}
	if err := p.reachable(); err != nil {
		return err
	}
	cost, err := a.k.transferTime(a.host, p.owner.host, msg.PayloadSize())
	if err != nil {
		return err
	}
	arrival := a.k.now + cost
	// FIFO per sender/receiver pair: a later message never overtakes an
	// earlier one.
	if last := p.lastArrival[a.name]; arrival < last {
		arrival = last
	}
	p.lastArrival[a.name] = arrival

	env := &envelope{msg: msg, sender: a, ack: ack, ackPending: ackPending}
	if !a.killed {
		a.inflight = append(a.inflight, env)
	}
	a.k.at(arrival-a.k.now, func() {
		a.dropInflight(env)
		p.deliver(env)
	})
	return nil
}

func (p *Commport) deliver(env *envelope) {
	k := p.k
	if err := p.reachable(); err != nil {
		env.abort(k, err)
		return
	}
	if env.aborted {
		// The sender was killed with this message in flight; the
		// counterparty observes a network error if it is waiting.
		if p.recv != nil && !p.recv.fired {
			w := p.recv
			p.recv = nil
			w.fired = true
			k.dispatch(w.a, wake{err: &failure.NetworkError{Port: p.name, Reason: "sender was killed"}})
		}
		return
	}

	// Hand the message to a pending asynchronous receive first, then to a
	// blocked Get, else queue it.
	for len(p.asyncRecv) > 0 {
		pd := p.asyncRecv[0]
		p.asyncRecv = p.asyncRecv[1:]
		if pd.done {
			continue
		}
		env.consumed(k)
		pd.complete(env.msg, nil)
		return
	}
	if p.recv != nil && !p.recv.fired {
		w := p.recv
		p.recv = nil
		w.fired = true
		env.consumed(k)
		k.dispatch(w.a, wake{msg: env.msg})
		return
	}
	p.queue = append(p.queue, env)
}

// consumed releases a blocking or asynchronous sender.
func (e *envelope) consumed(k *Kernel) {
	if e.ack != nil {
		k.fireNow(e.ack, wake{})
		e.ack = nil
	}
	if e.ackPending != nil {
		e.ackPending.complete(nil, nil)
		e.ackPending = nil
	}
}

func (e *envelope) abort(k *Kernel, err error) {
	if e.ack != nil {
		k.fireNow(e.ack, wake{err: err})
		e.ack = nil
	}
	if e.ackPending != nil {
		e.ackPending.complete(nil, err)
		e.ackPending = nil
	}
}

// Put sends msg and blocks until the receiver has consumed it. It fails
// with a NetworkError if the destination is unreachable.
func (a *Actor) Put(p *Commport, msg Message) error {
	ack := &waiter{a: a}
	if err := a.send(p, msg, ack, nil); err != nil {
		return err
	}
	a.blocking = &blockOp{cancel: func() { ack.fired = true }}
	wk := a.park()
	a.blocking = nil
	return wk.err
}

// DPut sends msg without waiting for consumption. Failures after the send
// is scheduled are dropped; statically-detectable ones are returned.
func (a *Actor) DPut(p *Commport, msg Message) error {
	return a.send(p, msg, nil, nil)
}

// IPut sends msg asynchronously; the returned Pending completes when the
// receiver consumes the message.
func (a *Actor) IPut(p *Commport, msg Message) (*Pending, error) {
	pd := &Pending{k: a.k}
	if err := a.send(p, msg, nil, pd); err != nil {
		return nil, err
	}
	return pd, nil
}

// Get blocks until a message arrives on the port, or until timeout seconds
// of virtual time pass (timeout < 0 means no timeout), in which case it
// fails with an OperationTimeout. Only the owner may call Get.
func (p *Commport) Get(timeout float64) (Message, error) {
	a := p.owner
	if err := a.checkRunnable(); err != nil {
		return nil, err
	}
	if len(p.queue) > 0 {
		env := p.queue[0]
		p.queue = p.queue[1:]
		env.consumed(p.k)
		return env.msg, nil
	}
	w := &waiter{a: a}
	p.recv = w
	a.blocking = &blockOp{cancel: func() {
		w.fired = true
		p.recv = nil
	}}
	if timeout >= 0 {
		p.k.at(timeout, func() {
			if w.fired {
				return
			}
			w.fired = true
			p.recv = nil
			p.k.dispatch(a, wake{err: &failure.OperationTimeout{Operation: "get on " + p.name, Timeout: timeout}})
		})
	}
	wk := a.park()
	a.blocking = nil
	if wk.err != nil {
		return nil, wk.err
	}
	return wk.msg.(Message), nil
}

// IGet starts an asynchronous receive. The returned Pending completes with
// the next message delivered to the port that no earlier receive claims.
func (p *Commport) IGet() *Pending {
	pd := &Pending{k: p.k}
	if len(p.queue) > 0 {
		env := p.queue[0]
		p.queue = p.queue[1:]
		env.consumed(p.k)
		pd.complete(env.msg, nil)
		return pd
	}
	p.asyncRecv = append(p.asyncRecv, pd)
	return pd
}

// InjectMessage delivers msg to a port from kernel context (no sending
// actor, no network cost). Host-state watchers use it to feed services.
func (k *Kernel) InjectMessage(p *Commport, msg Message) {
	k.at(0, func() { p.deliver(&envelope{msg: msg}) })
}

// Pending is the handle of an asynchronous communication.
type Pending struct {
	k    *Kernel
	done bool
	msg  Message
	err  error

	waiters []pendingWaiter
}

type pendingWaiter struct {
	w   *waiter
	idx int
}

func (pd *Pending) complete(msg Message, err error) {
	if pd.done {
		return
	}
	pd.done = true
	pd.msg = msg
	pd.err = err
	for _, pw := range pd.waiters {
		if pw.w.fired {
			continue
		}
		pw.w.fired = true
		idx := pw.idx
		pd.k.at(0, func() { pd.k.dispatch(pw.w.a, wake{msg: pd, idx: idx}) })
	}
	pd.waiters = nil
}

// Done reports whether the communication has completed.
func (pd *Pending) Done() bool { return pd.done }

// Wait blocks the calling actor until the communication completes or the
// timeout expires (timeout < 0 means no timeout).
func (pd *Pending) Wait(a *Actor, timeout float64) (Message, error) {
	if err := a.checkRunnable(); err != nil {
		return nil, err
	}
	if pd.done {
		return pd.msg, pd.err
	}
	w := &waiter{a: a}
	pd.waiters = append(pd.waiters, pendingWaiter{w: w})
	a.blocking = &blockOp{cancel: func() { w.fired = true }}
	if timeout >= 0 {
		pd.k.at(timeout, func() {
			if w.fired {
				return
			}
			w.fired = true
			pd.k.dispatch(a, wake{err: &failure.OperationTimeout{Operation: "wait", Timeout: timeout}})
		})
	}
	wk := a.park()
	a.blocking = nil
	if wk.err != nil {
		return nil, wk.err
	}
	return pd.msg, pd.err
}

// WaitAny blocks until one of pendings completes or the timeout expires,
// returning the index of the first completion in heap order. Already
// completed handles win immediately, lowest index first.
func WaitAny(a *Actor, pendings []*Pending, timeout float64) (int, Message, error) {
	if err := a.checkRunnable(); err != nil {
		return -1, nil, err
	}
	if len(pendings) == 0 {
		return -1, nil, failure.NewInvalidArgument("WaitAny on empty handle list")
	}
	for i, pd := range pendings {
		if pd.done {
			return i, pd.msg, pd.err
		}
	}
	w := &waiter{a: a}
	for i, pd := range pendings {
		pd.waiters = append(pd.waiters, pendingWaiter{w: w, idx: i})
	}
	a.blocking = &blockOp{cancel: func() { w.fired = true }}
	k := pendings[0].k
	if timeout >= 0 {
		k.at(timeout, func() {
			if w.fired {
				return
			}
			w.fired = true
			k.dispatch(a, wake{err: &failure.OperationTimeout{Operation: "wait-any", Timeout: timeout}})
		})
	}
	wk := a.park()
	a.blocking = nil
	if wk.err != nil {
		return -1, nil, wk.err
	}
	pd := wk.msg.(*Pending)
	return wk.idx, pd.msg, pd.err
}
