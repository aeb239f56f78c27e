package kernel

import (
	"container/heap"
	"errors"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/log"
	"github.com/meridian-sim/meridian/pkg/platform"
)

// ErrSimulationEnded is returned from blocking operations of actors that are
// still alive when the event horizon is reached or the kernel is stopped.
var ErrSimulationEnded = errors.New("simulation ended")

// Kernel is the discrete-event core: a virtual clock, an event heap ordered
// by (time, sequence), the host table and the commport namespace. Exactly
// one goroutine — the kernel's or the single resumed actor's — runs at any
// wall-clock instant, so no kernel state needs locking.
type Kernel struct {
	logger zerolog.Logger

	now float64
	seq uint64

	events eventHeap

	platform   *platform.Platform
	hosts      []*Host
	hostByName map[string]*Host

	ports map[string]*Commport

	rng *rand.Rand

	actors  []*Actor
	yielded chan struct{}

	watchers []HostStateWatcher

	running bool
	stopped bool
}

// HostStateWatcher observes host on/off transitions. Watchers run in kernel
// event context and must not block; they typically inject a message into a
// service's commport.
type HostStateWatcher func(h *Host, up bool)

type event struct {
	time float64
	seq  uint64
	fn   func()
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// New creates a kernel over a platform. The seed drives the single RNG every
// randomized decision in the simulation must use.
func New(p *platform.Platform, seed int64) *Kernel {
	k := &Kernel{
		logger:     log.WithComponent("kernel"),
		platform:   p,
		hostByName: make(map[string]*Host),
		ports:      make(map[string]*Commport),
		rng:        rand.New(rand.NewSource(seed)),
		yielded:    make(chan struct{}),
	}
	for _, ph := range p.Hosts() {
		h := &Host{k: k, name: ph.Name, speed: ph.Speed, cores: ph.Cores, ram: ph.RAM, on: true, desc: ph}
		k.hosts = append(k.hosts, h)
		k.hostByName[ph.Name] = h
	}
	return k
}

// Now returns the current virtual time.
func (k *Kernel) Now() float64 { return k.now }

// RNG returns the simulation's seeded random source.
func (k *Kernel) RNG() *rand.Rand { return k.rng }

// Hosts returns the hosts in platform declaration order.
func (k *Kernel) Hosts() []*Host { return k.hosts }

// HostByName looks up a host.
func (k *Kernel) HostByName(name string) (*Host, bool) {
	h, ok := k.hostByName[name]
	return h, ok
}

// Platform returns the platform description the kernel was built from.
func (k *Kernel) Platform() *platform.Platform { return k.platform }

// WatchHostState registers a watcher for host on/off transitions.
func (k *Kernel) WatchHostState(w HostStateWatcher) {
	k.watchers = append(k.watchers, w)
}

// Schedule runs fn at virtual time Now()+dt. fn executes in kernel event
// context and must not block; it may resume actors indirectly by firing
// waiters or injecting messages.
func (k *Kernel) Schedule(dt float64, fn func()) {
	k.at(dt, fn)
}

func (k *Kernel) at(dt float64, fn func()) {
	if dt < 0 {
		dt = 0
	}
	k.seq++
	heap.Push(&k.events, &event{time: k.now + dt, seq: k.seq, fn: fn})
}

// Run processes events until the heap drains or Stop is called, then wakes
// every still-parked actor with ErrSimulationEnded so their goroutines exit.
func (k *Kernel) Run() {
	k.running = true
	for len(k.events) > 0 && !k.stopped {
		e := heap.Pop(&k.events).(*event)
		k.now = e.time
		e.fn()
	}
	k.stopped = true
	k.drainActors()
	k.running = false
}

// Stop makes Run return after the current event.
func (k *Kernel) Stop() { k.stopped = true }

func (k *Kernel) drainActors() {
	for _, a := range k.actors {
		if a.state != actorDead && a.parked {
			a.killed = true
			a.killCause = ErrSimulationEnded
			a.suspended = false
			k.dispatch(a, wake{err: ErrSimulationEnded})
		}
	}
}

// dispatch hands the CPU to a parked actor and waits for it to park again or
// exit. Only kernel event context calls this.
func (k *Kernel) dispatch(a *Actor, w wake) {
	if a.state == actorDead || !a.parked {
		return
	}
	if a.suspended {
		a.deferred = append(a.deferred, w)
		return
	}
	a.parked = false
	a.resume <- w
	<-k.yielded
}

// fireAt schedules waking w's actor at Now()+dt unless the waiter has been
// satisfied (or cancelled) by then. First to fire wins.
func (k *Kernel) fireAt(w *waiter, dt float64, wk wake) {
	k.at(dt, func() {
		if w.fired {
			return
		}
		w.fired = true
		if w.onFire != nil {
			w.onFire()
		}
		k.dispatch(w.a, wk)
	})
}

// fireNow is fireAt with zero delay.
func (k *Kernel) fireNow(w *waiter, wk wake) { k.fireAt(w, 0, wk) }

// transferTime returns the simulated cost of moving size bytes between two
// hosts, or a NetworkError when no route exists.
func (k *Kernel) transferTime(src, dst *Host, size float64) (float64, error) {
	if src == dst {
		return 0, nil
	}
	bw, lat, ok := k.platform.RouteBetween(src.name, dst.name)
	if !ok {
		return 0, &failure.NetworkError{Reason: "no route between " + src.name + " and " + dst.name}
	}
	t := lat
	if bw > 0 && size > 0 {
		t += size / bw
	}
	return t, nil
}
