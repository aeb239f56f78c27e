package compute

import (
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/service"
)

func control() kernel.Payload {
	return kernel.Payload{Bytes: service.DefaultControlMessageSize}
}

// SubmitJobRequest submits a compound job. ReplyPort receives the
// synchronous answer; NotifyPort receives the job's completion or failure
// notification later.
type SubmitJobRequest struct {
	kernel.Payload
	ReplyPort  *kernel.Commport
	NotifyPort *kernel.Commport
	Job        *job.CompoundJob
	Args       map[string]string
}

// SubmitJobAnswer acknowledges or refuses a submission.
type SubmitJobAnswer struct {
	kernel.Payload
	Job     *job.CompoundJob
	Success bool
	Cause   error
}

// TerminateJobRequest kills a job and everything it is running.
type TerminateJobRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	Job       *job.CompoundJob
}

// TerminateJobAnswer acknowledges or refuses a termination.
type TerminateJobAnswer struct {
	kernel.Payload
	Job     *job.CompoundJob
	Success bool
	Cause   error
}

// ResourceInfoRequest asks for a snapshot of capacities or availabilities.
// Supported keys: num_hosts, num_cores, num_idle_cores, flop_rates,
// ram_capacities, ram_availabilities.
type ResourceInfoRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	Key       string
}

// ResourceInfoAnswer carries the snapshot, keyed by host name (or by the
// request key for scalar answers).
type ResourceInfoAnswer struct {
	kernel.Payload
	Info  map[string]float64
	Cause error
}

// JobCompleted notifies the submitter that every action of the job
// completed.
type JobCompleted struct {
	kernel.Payload
	Job     *job.CompoundJob
	Service string
}

// JobFailed notifies the submitter that the job reached a terminal state
// without completing. Cause is the aggregate: the first non-cascade cause
// observed.
type JobFailed struct {
	kernel.Payload
	Job     *job.CompoundJob
	Service string
	Cause   error
}

// hostStateChange is injected into the service's port by the kernel's
// host-state watcher.
type hostStateChange struct {
	kernel.Payload
	Host *kernel.Host
	Up   bool
}
