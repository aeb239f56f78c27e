package compute

import (
	"github.com/meridian-sim/meridian/pkg/kernel"
)

// HostFreeState is the placement view of one managed host.
type HostFreeState struct {
	Host      *kernel.Host
	FreeCores int
	FreeRAM   float64
}

// Placement selects a host for an allocation of (cores, ram) from the
// candidate list, returning an index or -1. Candidates arrive in the
// service's stable host order with unusable hosts (off, pinned-away)
// already filtered out of consideration via fits.
type Placement func(candidates []*HostFreeState, cores int, ram float64) int

func fits(h *HostFreeState, cores int, ram float64) bool {
	return h.Host.On() && h.FreeCores >= cores && h.FreeRAM >= ram
}

// FirstFit picks the first host that fits, in stable host order. This is
// the default policy.
func FirstFit(candidates []*HostFreeState, cores int, ram float64) int {
	for i, h := range candidates {
		if fits(h, cores, ram) {
			return i
		}
	}
	return -1
}

// BestFit picks the fitting host with the least core slack, breaking ties
// on smaller RAM slack, then on stable order.
func BestFit(candidates []*HostFreeState, cores int, ram float64) int {
	best := -1
	for i, h := range candidates {
		if !fits(h, cores, ram) {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		b := candidates[best]
		coreSlack := h.FreeCores - cores
		bestCoreSlack := b.FreeCores - cores
		if coreSlack < bestCoreSlack ||
			(coreSlack == bestCoreSlack && h.FreeRAM-ram < b.FreeRAM-ram) {
			best = i
		}
	}
	return best
}

// RoundRobin resumes scanning from just past the previously picked host.
// Each service instance gets its own closure so the cursor is private.
func RoundRobin() Placement {
	last := -1
	return func(candidates []*HostFreeState, cores int, ram float64) int {
		n := len(candidates)
		if n == 0 {
			return -1
		}
		for off := 1; off <= n; off++ {
			i := (last + off) % n
			if fits(candidates[i], cores, ram) {
				last = i
				return i
			}
		}
		return -1
	}
}
