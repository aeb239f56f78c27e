package kernel

import (
	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/platform"
)

// Host is the runtime view of a platform host: static capacities plus the
// on/off state and the set of live actors pinned to it.
type Host struct {
	k     *Kernel
	name  string
	speed float64
	cores int
	ram   float64
	on    bool
	desc  *platform.Host

	actors []*Actor
}

// Name returns the host name.
func (h *Host) Name() string { return h.name }

// Speed returns the flop rate of one core, in flops per second.
func (h *Host) Speed() float64 { return h.speed }

// Cores returns the host's core count.
func (h *Host) Cores() int { return h.cores }

// RAM returns the host's RAM capacity in bytes.
func (h *Host) RAM() float64 { return h.ram }

// On reports whether the host is powered on.
func (h *Host) On() bool { return h.on }

// Description returns the platform declaration this host was built from.
func (h *Host) Description() *platform.Host { return h.desc }

func (h *Host) removeActor(a *Actor) {
	for i, x := range h.actors {
		if x == a {
			h.actors = append(h.actors[:i], h.actors[i+1:]...)
			return
		}
	}
}

// TurnOff powers the host down: every actor pinned to it is killed with a
// HostError, and host-state watchers are notified. A no-op if already off.
func (h *Host) TurnOff() {
	if !h.on {
		return
	}
	h.on = false
	cause := &failure.HostError{Host: h.name}
	victims := make([]*Actor, len(h.actors))
	copy(victims, h.actors)
	for _, a := range victims {
		a.Kill(cause)
	}
	h.notifyWatchers(false)
}

// TurnOn powers the host back up. Actors killed by an earlier TurnOff do not
// come back; new actors may be created on the host. A no-op if already on.
func (h *Host) TurnOn() {
	if h.on {
		return
	}
	h.on = true
	h.notifyWatchers(true)
}

func (h *Host) notifyWatchers(up bool) {
	k := h.k
	watchers := make([]HostStateWatcher, len(k.watchers))
	copy(watchers, k.watchers)
	k.at(0, func() {
		for _, w := range watchers {
			w(h, up)
		}
	})
}
