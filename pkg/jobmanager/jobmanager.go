package jobmanager

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/service"
	"github.com/meridian-sim/meridian/pkg/service/compute"
)

// ComputeService is the minimum contract the job manager needs from a
// compute service: an identity, a request port, and liveness.
type ComputeService interface {
	Name() string
	Port() *kernel.Commport
	AssertUp() error
}

// CompoundJobCompletedEvent is delivered to the controller when every
// action of a job completed.
type CompoundJobCompletedEvent struct {
	kernel.Payload
	Job     *job.CompoundJob
	Service string
}

// CompoundJobFailedEvent is delivered to the controller when a job reaches
// a terminal state without completing. Cause aggregates the job's failure:
// the first non-cascade cause seen, or JobKilled for terminations.
type CompoundJobFailedEvent struct {
	kernel.Payload
	Job     *job.CompoundJob
	Service string
	Cause   error
}

type jobRecord struct {
	service   ComputeService
	submitted bool
}

// Manager is the per-controller job helper: the sole factory for compound
// jobs, the submission proxy to compute services, and the republisher of
// raw service notifications as controller-facing events.
type Manager struct {
	*service.Base

	owner     *kernel.Actor
	ownerPort *kernel.Commport

	jobs     map[*job.CompoundJob]*jobRecord
	replySeq int
}

// New spawns a job manager daemon for the owning controller actor, on the
// controller's host.
func New(k *kernel.Kernel, owner *kernel.Actor) (*Manager, error) {
	if owner == nil {
		return nil, failure.NewInvalidArgument("nil owner for job manager")
	}
	name := fmt.Sprintf("job-manager-%s-%s", owner.Name(), uuid.New().String()[:8])
	m := &Manager{
		Base:  service.NewBase(name, owner.Host()),
		owner: owner,
		jobs:  make(map[*job.CompoundJob]*jobRecord),
	}
	ownerPort, err := k.NewCommport(owner, name+"-events")
	if err != nil {
		return nil, err
	}
	m.ownerPort = ownerPort
	if err := m.Start(k, m.main); err != nil {
		return nil, err
	}
	return m, nil
}

// main republishes raw service notifications as controller events.
func (m *Manager) main() error {
	logger := m.Logger()
	for {
		msg, err := m.Port().Get(-1)
		if err != nil {
			return nil
		}
		switch raw := msg.(type) {
		case *service.StopRequest:
			m.SetUp(false)
			m.Actor().DPut(raw.ReplyPort, &service.DaemonStopped{Service: m.Name()})
			return nil
		case *compute.JobCompleted:
			ev := &CompoundJobCompletedEvent{Job: raw.Job, Service: raw.Service}
			m.Actor().DPut(m.ownerPort, ev)
		case *compute.JobFailed:
			ev := &CompoundJobFailedEvent{Job: raw.Job, Service: raw.Service, Cause: raw.Cause}
			m.Actor().DPut(m.ownerPort, ev)
		default:
			logger.Warn().Msgf("Job manager dropping unexpected message %T", msg)
		}
	}
}

// CreateCompoundJob builds a job owned by this manager. An empty name gets
// a generated one.
func (m *Manager) CreateCompoundJob(name string) (*job.CompoundJob, error) {
	if name == "" {
		name = "job-" + uuid.New().String()[:8]
	}
	j, err := job.NewCompoundJob(name)
	if err != nil {
		return nil, err
	}
	m.jobs[j] = &jobRecord{}
	return j, nil
}

func (m *Manager) tempReplyPort() (*kernel.Commport, error) {
	m.replySeq++
	return m.Kernel().NewCommport(m.owner, fmt.Sprintf("%s-reply-%d", m.Name(), m.replySeq))
}

// SubmitJob submits a job created through this manager to a compute
// service. On success the job is PENDING (RUNNING if the service already
// dispatched one of its actions) and its DAG is frozen. Called
// from the owning controller's actor context.
func (m *Manager) SubmitJob(j *job.CompoundJob, svc ComputeService, args map[string]string) error {
	rec, mine := m.jobs[j]
	if !mine {
		return failure.NewInvalidArgument("job was not created by this job manager")
	}
	if j.State() != job.JobNotSubmitted {
		return failure.NewInvalidArgument("job %q is in state %s, not NOT_SUBMITTED", j.Name(), j.State())
	}
	if err := svc.AssertUp(); err != nil {
		return err
	}
	reply, err := m.tempReplyPort()
	if err != nil {
		return err
	}
	req := &compute.SubmitJobRequest{
		Payload:    kernel.Payload{Bytes: service.DefaultControlMessageSize},
		ReplyPort:  reply,
		NotifyPort: m.Port(),
		Job:        j,
		Args:       args,
	}
	if err := m.owner.Put(svc.Port(), req); err != nil {
		return err
	}
	msg, err := reply.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*compute.SubmitJobAnswer)
	if !ok {
		return &failure.NetworkError{Port: reply.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	rec.service = svc
	rec.submitted = true
	return nil
}

// TerminateJob kills a submitted job on its service: running actions are
// killed, the rest marked KILLED, and the job ends KILLED.
func (m *Manager) TerminateJob(j *job.CompoundJob) error {
	rec, mine := m.jobs[j]
	if !mine || !rec.submitted {
		return failure.NewInvalidArgument("job was not submitted through this job manager")
	}
	reply, err := m.tempReplyPort()
	if err != nil {
		return err
	}
	req := &compute.TerminateJobRequest{
		Payload:   kernel.Payload{Bytes: service.DefaultControlMessageSize},
		ReplyPort: reply,
		Job:       j,
	}
	if err := m.owner.Put(rec.service.Port(), req); err != nil {
		return err
	}
	msg, err := reply.Get(-1)
	if err != nil {
		return err
	}
	ans, ok := msg.(*compute.TerminateJobAnswer)
	if !ok {
		return &failure.NetworkError{Port: reply.Name(), Reason: fmt.Sprintf("unexpected answer %T", msg)}
	}
	if !ans.Success {
		return ans.Cause
	}
	return nil
}

// ForgetJob releases the manager's reference to a job. Forgetting a job
// that is still pending or running is an error; forgetting twice is a
// no-op.
func (m *Manager) ForgetJob(j *job.CompoundJob) error {
	rec, mine := m.jobs[j]
	if !mine {
		return nil
	}
	if rec.submitted && !j.State().Terminal() {
		return failure.NewInvalidArgument("job %q is still in flight", j.Name())
	}
	delete(m.jobs, j)
	return nil
}

// EventPort returns the controller-facing event port.
func (m *Manager) EventPort() *kernel.Commport { return m.ownerPort }

// WaitForNextEvent blocks the controller until the next job event arrives
// (timeout < 0 waits forever). The result is either a
// *CompoundJobCompletedEvent or a *CompoundJobFailedEvent.
func (m *Manager) WaitForNextEvent(timeout float64) (any, error) {
	msg, err := m.ownerPort.Get(timeout)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
