package executor

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/log"
	"github.com/meridian-sim/meridian/pkg/mpi"
	"github.com/meridian-sim/meridian/pkg/service"
	"github.com/meridian-sim/meridian/pkg/service/registry"
	"github.com/meridian-sim/meridian/pkg/service/storage"
)

// Done signals an executor reaching a terminal state for its action. It is
// sent to the reply port exactly once per executor.
type Done struct {
	kernel.Payload
	Executor *Executor
	Action   *job.Action
}

// Executor runs exactly one action on an allocation (host, cores, ram) and
// reports the outcome to a reply port. It is itself a cooperative actor;
// a Compute action may fan out logical compute threads, but the scheduler
// sees a single schedulable entity.
type Executor struct {
	k         *kernel.Kernel
	action    *job.Action
	host      *kernel.Host
	cores     int
	ram       float64
	replyPort *kernel.Commport
	timeout   float64 // seconds; <= 0 means none
	logger    zerolog.Logger

	// Compute simulation knobs.
	SimulateComputationAsSleep bool
	ThreadCreationOverhead     float64

	actor    *kernel.Actor
	ansPort  *kernel.Commport
	comm     *mpi.Communicator
	finished bool
	timedOut bool
	killedBy error
}

// New builds an executor for one action.
func New(k *kernel.Kernel, action *job.Action, host *kernel.Host, cores int, ram float64, replyPort *kernel.Commport, timeout float64) *Executor {
	return &Executor{
		k:         k,
		action:    action,
		host:      host,
		cores:     cores,
		ram:       ram,
		replyPort: replyPort,
		timeout:   timeout,
		logger:    log.WithAction(action.Name()),
	}
}

// Action returns the action being executed.
func (e *Executor) Action() *job.Action { return e.action }

// HostName returns the allocation's host name.
func (e *Executor) HostName() string { return e.host.Name() }

// NumCoresAllocated returns the allocation's core count.
func (e *Executor) NumCoresAllocated() int { return e.cores }

// RAMAllocatedBytes returns the allocation's RAM in bytes.
func (e *Executor) RAMAllocatedBytes() float64 { return e.ram }

// Start spawns the executor actor. The action transitions to STARTED when
// the actor first runs.
func (e *Executor) Start() error {
	name := fmt.Sprintf("executor-%s-%s", e.action.Name(), uuid.New().String()[:8])
	actor, err := e.k.CreateActor(e.host, name, e.run)
	if err != nil {
		return err
	}
	e.actor = actor
	e.ansPort, err = e.k.NewCommport(actor, name+"-reply")
	return err
}

// Kill terminates the execution from outside with the given cause. The
// action's terminate hook runs and the Done message is still emitted.
func (e *Executor) Kill(cause error) {
	if e.finished || e.actor == nil {
		return
	}
	e.killedBy = cause
	e.actor.Kill(cause)
}

func (e *Executor) run(a *kernel.Actor) error {
	now := e.k.Now()
	e.action.NewAttempt(now, e.host.Name(), e.cores, e.ram)

	if e.cores < e.action.MinNumCores() || e.ram < e.action.MinRAMFootprint() {
		e.action.Fail(now, &failure.FatalFailure{Reason: "Invalid resource specs for Action Executor"})
		e.sendDone(a)
		return nil
	}

	if e.timeout > 0 {
		e.k.Schedule(e.timeout, func() {
			if e.finished {
				return
			}
			e.timedOut = true
			a.Kill(&failure.OperationTimeout{Operation: "action " + e.action.Name(), Timeout: e.timeout})
		})
	}

	err := e.execute(a)
	e.finished = true
	end := e.k.Now()

	switch {
	case err == nil:
		e.action.Complete(end)
	default:
		var killed *kernel.KilledError
		if errors.As(err, &killed) {
			e.terminateHooks(killed.Cause)
			var hostErr *failure.HostError
			switch {
			case e.timedOut, errors.As(killed.Cause, &hostErr):
				// Timeouts and host failures surface as action
				// failures, not kills.
				e.action.Fail(end, killed.Cause)
			default:
				e.action.MarkKilled(end, killed.Cause)
			}
		} else {
			e.action.Fail(end, err)
		}
	}

	e.sendDone(a)
	return nil
}

func (e *Executor) sendDone(a *kernel.Actor) {
	e.finished = true
	msg := &Done{Payload: kernel.Payload{Bytes: service.DefaultControlMessageSize}, Executor: e, Action: e.action}
	if err := a.DPut(e.replyPort, msg); err != nil {
		// The reply port's host is off; its owner learns through the
		// host-state cascade instead.
		e.logger.Debug().Err(err).Msg("Could not deliver executor completion")
	}
}

// terminateHooks runs the variant's termination behavior after a kill.
func (e *Executor) terminateHooks(cause error) {
	switch e.action.Kind() {
	case job.KindCustom:
		if t := e.action.Custom().Terminate; t != nil {
			t(e)
		}
	case job.KindMPI:
		if e.comm != nil {
			e.comm.Kill(cause)
		}
	}
}

func (e *Executor) execute(a *kernel.Actor) error {
	switch e.action.Kind() {
	case job.KindCompute:
		return e.executeCompute(a)
	case job.KindSleep:
		return a.Sleep(e.action.SleepSpec().Duration)
	case job.KindFileRead:
		spec := e.action.FileSpec()
		return e.ReadFile(spec.File, spec.Source, spec.NumBytes)
	case job.KindFileWrite:
		spec := e.action.FileSpec()
		return e.WriteFile(spec.File, spec.Destination)
	case job.KindFileCopy:
		spec := e.action.FileSpec()
		return e.CopyFile(spec.File, spec.Source, spec.Destination)
	case job.KindFileDelete:
		spec := e.action.FileSpec()
		return e.DeleteFile(spec.File, spec.Source)
	case job.KindFileRegistryAdd:
		spec := e.action.FileSpec()
		return e.RegistryAdd(spec.Registry, spec.File, spec.Source)
	case job.KindFileRegistryDelete:
		spec := e.action.FileSpec()
		return e.RegistryDelete(spec.Registry, spec.File, spec.Source)
	case job.KindCustom:
		return e.action.Custom().Run(e)
	case job.KindMPI:
		return e.executeMPI(a)
	}
	return &failure.FatalFailure{Reason: "unknown action kind"}
}

// executeCompute simulates the compute payload either as one sleep of the
// bottleneck thread's duration or as an n-way concurrent execution. The two
// are observationally equivalent at zero thread-creation overhead and
// uniform per-thread work.
func (e *Executor) executeCompute(a *kernel.Actor) error {
	spec := e.action.Compute()
	if e.cores > spec.MaxNumCores {
		return &failure.FatalFailure{Reason: "Invalid resource specs for Action Executor"}
	}
	work := job.WorkPerThread(spec.ParallelModel, spec.Flops, e.cores)

	if overhead := float64(len(work)) * e.ThreadCreationOverhead; overhead > 0 {
		if err := a.Sleep(overhead); err != nil {
			return err
		}
	}
	if e.SimulateComputationAsSleep {
		max := 0.0
		for _, w := range work {
			if w > max {
				max = w
			}
		}
		return a.Sleep(max / e.host.Speed())
	}
	if err := a.ComputeMulti(work); err != nil {
		var killed *kernel.KilledError
		if errors.As(err, &killed) {
			return err
		}
		return &failure.ComputeThreadDied{}
	}
	return nil
}

func (e *Executor) executeMPI(a *kernel.Actor) error {
	comm, err := mpi.Start(e.k, e.host, a, e.action.MPI())
	e.comm = comm
	if err != nil {
		return err
	}
	return comm.Wait()
}

// --- job.ExecutionEnv ---

// Now returns the current virtual time.
func (e *Executor) Now() float64 { return e.k.Now() }

// Host returns the allocation's host name.
func (e *Executor) Host() string { return e.host.Name() }

// NumCores returns the allocation's core count.
func (e *Executor) NumCores() int { return e.cores }

// RAMAllocated returns the allocation's RAM in bytes.
func (e *Executor) RAMAllocated() float64 { return e.ram }

// Sleep suspends the executor.
func (e *Executor) Sleep(seconds float64) error { return e.actor.Sleep(seconds) }

// Compute blocks for flops of single-core work.
func (e *Executor) Compute(flops float64) error { return e.actor.Compute(flops) }

// ComputeMulti blocks for an n-way parallel execution.
func (e *Executor) ComputeMulti(work []float64) error { return e.actor.ComputeMulti(work) }

func (e *Executor) servicePort(p job.StorageProvider) (*kernel.Commport, error) {
	port, ok := e.k.PortByName(p.RequestPortName())
	if !ok {
		return nil, &failure.ServiceDown{Service: p.Name()}
	}
	return port, nil
}

// targetOf resolves the service a request for loc goes to: the proxy when
// the location is proxied, else the storage service itself.
func targetOf(loc *job.FileLocation) job.StorageProvider {
	if loc.Proxy != nil {
		return loc.Proxy
	}
	return loc.Service
}

func control() kernel.Payload {
	return kernel.Payload{Bytes: service.DefaultControlMessageSize}
}

// ReadFile streams numBytes of f from loc (0 means all of it).
func (e *Executor) ReadFile(f *job.DataFile, loc *job.FileLocation, numBytes float64) error {
	port, err := e.servicePort(targetOf(loc))
	if err != nil {
		return err
	}
	req := &storage.FileReadRequest{Payload: control(), ReplyPort: e.ansPort, File: f, Location: loc, NumBytes: numBytes}
	if err := e.actor.Put(port, req); err != nil {
		return err
	}
	msg, err := e.ansPort.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*storage.FileReadAnswer)
	if !ok {
		return &failure.NetworkError{Port: e.ansPort.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	return nil
}

// WriteFile stores f at loc.
func (e *Executor) WriteFile(f *job.DataFile, loc *job.FileLocation) error {
	port, err := e.servicePort(targetOf(loc))
	if err != nil {
		return err
	}
	req := &storage.FileWriteRequest{Payload: kernel.Payload{Bytes: f.Size()}, ReplyPort: e.ansPort, File: f, Location: loc}
	if err := e.actor.Put(port, req); err != nil {
		return err
	}
	msg, err := e.ansPort.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*storage.FileWriteAnswer)
	if !ok {
		return &failure.NetworkError{Port: e.ansPort.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	return nil
}

// CopyFile copies f from src to dst; the destination service pulls.
func (e *Executor) CopyFile(f *job.DataFile, src, dst *job.FileLocation) error {
	port, err := e.servicePort(targetOf(dst))
	if err != nil {
		return err
	}
	req := &storage.FileCopyRequest{Payload: control(), ReplyPort: e.ansPort, File: f, Source: src, Destination: dst}
	if err := e.actor.Put(port, req); err != nil {
		return err
	}
	msg, err := e.ansPort.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*storage.FileCopyAnswer)
	if !ok {
		return &failure.NetworkError{Port: e.ansPort.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	return nil
}

// DeleteFile removes f from loc.
func (e *Executor) DeleteFile(f *job.DataFile, loc *job.FileLocation) error {
	port, err := e.servicePort(targetOf(loc))
	if err != nil {
		return err
	}
	req := &storage.FileDeleteRequest{Payload: control(), ReplyPort: e.ansPort, File: f, Location: loc}
	if err := e.actor.Put(port, req); err != nil {
		return err
	}
	msg, err := e.ansPort.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*storage.FileDeleteAnswer)
	if !ok {
		return &failure.NetworkError{Port: e.ansPort.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	return nil
}

// RegistryAdd registers (f, loc) with a file registry service.
func (e *Executor) RegistryAdd(reg job.StorageProvider, f *job.DataFile, loc *job.FileLocation) error {
	port, err := e.servicePort(reg)
	if err != nil {
		return err
	}
	req := &registry.AddEntryRequest{Payload: control(), ReplyPort: e.ansPort, File: f, Location: loc}
	if err := e.actor.Put(port, req); err != nil {
		return err
	}
	msg, err := e.ansPort.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*registry.AddEntryAnswer)
	if !ok {
		return &failure.NetworkError{Port: e.ansPort.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	return nil
}

// RegistryDelete removes (f, loc) from a file registry service.
func (e *Executor) RegistryDelete(reg job.StorageProvider, f *job.DataFile, loc *job.FileLocation) error {
	port, err := e.servicePort(reg)
	if err != nil {
		return err
	}
	req := &registry.RemoveEntryRequest{Payload: control(), ReplyPort: e.ansPort, File: f, Location: loc}
	if err := e.actor.Put(port, req); err != nil {
		return err
	}
	msg, err := e.ansPort.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*registry.RemoveEntryAnswer)
	if !ok {
		return &failure.NetworkError{Port: e.ansPort.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	return nil
}
