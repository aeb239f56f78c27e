package mpi

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
)

const controlSize = 64

type barrierArrive struct {
	kernel.Payload
	Rank int
}

type barrierRelease struct {
	kernel.Payload
}

type alltoallChunk struct {
	kernel.Payload
	From int
}

type rankDone struct {
	kernel.Payload
	Rank int
	Err  error
}

// Communicator runs one MPI action: n rank actors on one host exchanging
// messages through per-rank commports, plus a completion port owned by the
// spawning actor.
type Communicator struct {
	k     *kernel.Kernel
	host  *kernel.Host
	size  int
	ports []*kernel.Commport
	done  *kernel.Commport
	ranks []*rank
}

type rank struct {
	comm  *Communicator
	index int
	actor *kernel.Actor
	port  *kernel.Commport
}

// Start launches an MPI spec on host: every rank runs main as its own
// actor. Wait blocks the spawner until all ranks finish; Kill (from a
// terminate hook) tears the ranks down mid-run.
func Start(k *kernel.Kernel, host *kernel.Host, spawner *kernel.Actor, spec *job.MPISpec) (*Communicator, error) {
	c := &Communicator{k: k, host: host, size: spec.NumProcesses}
	id := uuid.New().String()[:8]

	done, err := k.NewCommport(spawner, fmt.Sprintf("mpi-%s-done", id))
	if err != nil {
		return nil, err
	}
	c.done = done

	for i := 0; i < spec.NumProcesses; i++ {
		r := &rank{comm: c, index: i}
		actor, err := k.CreateActor(host, fmt.Sprintf("mpi-%s-rank-%d", id, i), func(a *kernel.Actor) error {
			runErr := spec.Main(r)
			a.DPut(c.done, &rankDone{Payload: kernel.Payload{Bytes: controlSize}, Rank: r.index, Err: runErr})
			return runErr
		})
		if err != nil {
			return c, err
		}
		port, err := k.NewCommport(actor, fmt.Sprintf("mpi-%s-rank-%d", id, i))
		if err != nil {
			return c, err
		}
		r.actor = actor
		r.port = port
		c.ports = append(c.ports, port)
		c.ranks = append(c.ranks, r)
	}
	return c, nil
}

// Wait blocks until every rank reported completion, returning the first
// rank error if any.
func (c *Communicator) Wait() error {
	var firstErr error
	for i := 0; i < c.size; i++ {
		msg, err := c.done.Get(-1)
		if err != nil {
			return err
		}
		if d, ok := msg.(*rankDone); ok && d.Err != nil && firstErr == nil {
			firstErr = d.Err
		}
	}
	return firstErr
}

// Kill tears down all rank actors. Safe to call from a terminate hook.
func (c *Communicator) Kill(cause error) {
	for _, r := range c.ranks {
		r.actor.Kill(cause)
	}
}

// Rank returns this process's rank.
func (r *rank) Rank() int { return r.index }

// Size returns the communicator size.
func (r *rank) Size() int { return r.comm.size }

// Init is the MPI_Init equivalent; ranks synchronize before user work.
func (r *rank) Init() error { return r.Barrier() }

// Finalize is the MPI_Finalize equivalent; ranks synchronize on exit.
func (r *rank) Finalize() error { return r.Barrier() }

// Barrier blocks until every rank has entered it.
func (r *rank) Barrier() error {
	c := r.comm
	if c.size == 1 {
		return nil
	}
	if r.index == 0 {
		for i := 1; i < c.size; i++ {
			if _, err := r.port.Get(-1); err != nil {
				return err
			}
		}
		for i := 1; i < c.size; i++ {
			if err := r.actor.DPut(c.ports[i], &barrierRelease{Payload: kernel.Payload{Bytes: controlSize}}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := r.actor.DPut(c.ports[0], &barrierArrive{Payload: kernel.Payload{Bytes: controlSize}, Rank: r.index}); err != nil {
		return err
	}
	_, err := r.port.Get(-1)
	return err
}

// Alltoall sends bytesPerRank to every other rank and receives as much
// from each, blocking until all chunks destined to this rank arrived.
func (r *rank) Alltoall(bytesPerRank float64) error {
	if bytesPerRank < 0 {
		return failure.NewInvalidArgument("negative alltoall size %g", bytesPerRank)
	}
	c := r.comm
	for i := 0; i < c.size; i++ {
		if i == r.index {
			continue
		}
		if err := r.actor.DPut(c.ports[i], &alltoallChunk{Payload: kernel.Payload{Bytes: bytesPerRank}, From: r.index}); err != nil {
			return err
		}
	}
	for i := 1; i < c.size; i++ {
		if _, err := r.port.Get(-1); err != nil {
			return err
		}
	}
	return nil
}

// Compute blocks for flops of work on this rank's core.
func (r *rank) Compute(flops float64) error { return r.actor.Compute(flops) }

// Sleep suspends the rank.
func (r *rank) Sleep(seconds float64) error { return r.actor.Sleep(seconds) }
