package compute

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/meridian-sim/meridian/pkg/events"
	"github.com/meridian-sim/meridian/pkg/executor"
	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/metrics"
	"github.com/meridian-sim/meridian/pkg/service"
)

// Service is the bare-metal compute service: it accepts compound jobs,
// tracks per-host core and RAM availability, dispatches ready actions onto
// executors, propagates results back to submitters, and enforces the
// graceful/brutal stop semantics.
type Service struct {
	*service.Base

	hosts     []*hostState // stable order: platform declaration order
	hostIndex map[string]*hostState
	placement Placement
	broker    *events.Broker

	// Compute simulation knobs handed to executors.
	SimulateComputationAsSleep bool
	ThreadCreationOverhead     float64

	pending []*jobEntry // submission order
	jobs    map[*job.CompoundJob]*jobEntry

	draining   bool
	drainReply *kernel.Commport
}

type hostState struct {
	host      *kernel.Host
	freeCores int
	freeRAM   float64
}

type jobEntry struct {
	job     *job.CompoundJob
	notify  *kernel.Commport
	args    map[string]string
	timeout float64 // per-action timeout from "-t"; <= 0 none
	running map[string]*allocation
	done    bool // completion/failure notification already sent
}

type allocation struct {
	hs    *hostState
	cores int
	ram   float64
	exec  *executor.Executor
}

// Option configures a Service.
type Option func(*Service)

// WithPlacement sets the host-selection policy; the default is FirstFit.
func WithPlacement(p Placement) Option {
	return func(s *Service) { s.placement = p }
}

// WithBroker publishes simulation events through the broker.
func WithBroker(b *events.Broker) Option {
	return func(s *Service) { s.broker = b }
}

// New builds a bare-metal compute service running on host and managing
// computeHosts (nil means every platform host).
func New(name string, host *kernel.Host, computeHosts []*kernel.Host, opts ...Option) *Service {
	s := &Service{
		Base:      service.NewBase(name, host),
		hostIndex: make(map[string]*hostState),
		placement: FirstFit,
		jobs:      make(map[*job.CompoundJob]*jobEntry),
	}
	if len(computeHosts) == 0 {
		computeHosts = nil
	}
	for _, h := range computeHosts {
		s.addHost(h)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) addHost(h *kernel.Host) {
	hs := &hostState{host: h, freeCores: h.Cores(), freeRAM: h.RAM()}
	s.hosts = append(s.hosts, hs)
	s.hostIndex[h.Name()] = hs
}

// Run starts the service daemon. Hosts default to the whole platform when
// none were given.
func (s *Service) Run(k *kernel.Kernel) error {
	if len(s.hosts) == 0 {
		for _, h := range k.Hosts() {
			s.addHost(h)
		}
	}
	if err := s.Start(k, s.main); err != nil {
		return err
	}
	k.WatchHostState(func(h *kernel.Host, up bool) {
		if _, managed := s.hostIndex[h.Name()]; !managed {
			return
		}
		k.InjectMessage(s.Port(), &hostStateChange{Payload: control(), Host: h, Up: up})
	})
	return nil
}

// SupportsCompoundJobs reports the job types this service runs.
func (s *Service) SupportsCompoundJobs() bool { return true }

func (s *Service) publish(ev *events.Event) {
	if s.broker == nil {
		return
	}
	ev.VirtualTime = s.Kernel().Now()
	ev.Service = s.Name()
	s.broker.Publish(ev)
}

// main is the single-threaded event loop: one message, one handler, then a
// dispatch pass.
func (s *Service) main() error {
	logger := s.Logger()
	logger.Info().Str("host", s.Host().Name()).Int("managed_hosts", len(s.hosts)).Msg("Bare-metal compute service started")
	s.publish(&events.Event{Type: events.EventServiceStarted})

	for {
		msg, err := s.Port().Get(-1)
		if err != nil {
			logger.Debug().Err(err).Msg("Compute service event loop ending")
			s.publish(&events.Event{Type: events.EventServiceStopped})
			return nil
		}
		exit := false
		switch m := msg.(type) {
		case *SubmitJobRequest:
			s.handleSubmit(m)
		case *TerminateJobRequest:
			s.handleTerminate(m)
		case *ResourceInfoRequest:
			s.handleResourceInfo(m)
		case *executor.Done:
			s.handleExecutorDone(m)
		case *hostStateChange:
			s.handleHostStateChange(m)
		case *service.StopRequest:
			exit = s.handleStop(m)
		default:
			logger.Warn().Msgf("Compute service dropping unexpected message %T", msg)
		}
		if exit {
			s.publish(&events.Event{Type: events.EventServiceStopped})
			logger.Info().Msg("Bare-metal compute service stopped")
			return nil
		}
		s.tryDispatchReadyActions()
		if s.draining && !s.anyRunning() {
			s.finishDrain()
			s.publish(&events.Event{Type: events.EventServiceStopped})
			logger.Info().Msg("Bare-metal compute service stopped")
			return nil
		}
	}
}

// --- submission ---

func (s *Service) handleSubmit(m *SubmitJobRequest) {
	answer := func(cause error) {
		s.Actor().DPut(m.ReplyPort, &SubmitJobAnswer{Payload: control(), Job: m.Job, Success: cause == nil, Cause: cause})
	}
	if s.draining || !s.Up() {
		answer(&failure.ServiceDown{Service: s.Name()})
		return
	}
	if m.Job == nil {
		answer(failure.NewInvalidArgument("nil job"))
		return
	}
	if _, dup := s.jobs[m.Job]; dup {
		answer(failure.NewInvalidArgument("job %q already submitted", m.Job.Name()))
		return
	}
	timeout, cause := s.validateSubmission(m.Job, m.Args)
	if cause != nil {
		answer(cause)
		return
	}

	entry := &jobEntry{job: m.Job, notify: m.NotifyPort, args: m.Args, timeout: timeout, running: make(map[string]*allocation)}
	s.pending = append(s.pending, entry)
	s.jobs[m.Job] = entry
	m.Job.SetState(job.JobPending)
	metrics.JobsSubmitted.Inc()
	s.Logger().Info().Str("job", m.Job.Name()).Int("actions", len(m.Job.Actions())).Msg("Job submitted")
	s.publish(&events.Event{Type: events.EventJobSubmitted, Job: m.Job.Name()})
	answer(nil)

	if len(m.Job.Actions()) == 0 {
		s.settleJob(entry)
	}
}

// validateSubmission enforces the service-specific args contract and the
// static feasibility of every action, before any state changes.
func (s *Service) validateSubmission(j *job.CompoundJob, args map[string]string) (timeout float64, cause error) {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := args[key]
		if key == "-t" {
			t, err := strconv.ParseFloat(value, 64)
			if err != nil || t <= 0 {
				return 0, failure.NewInvalidArgument("malformed timeout %q", value)
			}
			timeout = t
			continue
		}
		a, known := j.ActionByName(key)
		if !known {
			return 0, failure.NewInvalidArgument("unknown service-specific argument %q", key)
		}
		hostName, cores, err := parseCoresArg(value)
		if err != nil {
			return 0, err
		}
		if hostName != "" {
			hs, managed := s.hostIndex[hostName]
			if !managed {
				return 0, failure.NewInvalidArgument("action %q pinned to unmanaged host %q", key, hostName)
			}
			if cores > hs.host.Cores() {
				return 0, &failure.NotEnoughResources{Service: s.Name(), Reason: "host " + hostName + " cannot provide " + strconv.Itoa(cores) + " cores"}
			}
		}
		if cores < a.MinNumCores() {
			return 0, failure.NewInvalidArgument("action %q requires at least %d cores, %d requested", key, a.MinNumCores(), cores)
		}
	}

	for _, a := range j.Actions() {
		if !s.feasible(a, args) {
			return 0, &failure.NotEnoughResources{Service: s.Name(), Reason: "no managed host can ever run action " + a.Name()}
		}
	}
	return timeout, nil
}

// feasible reports whether some managed host could ever satisfy the
// action, ignoring current occupancy.
func (s *Service) feasible(a *job.Action, args map[string]string) bool {
	cores, ram, pinned := s.request(a, args)
	for _, hs := range s.hosts {
		if pinned != "" && hs.host.Name() != pinned {
			continue
		}
		if hs.host.Cores() >= cores && hs.host.RAM() >= ram {
			return true
		}
	}
	return false
}

// request resolves the cores, RAM and optional host pin for an action:
// service-specific args win, else the action's max cores clamped by the
// largest managed host.
func (s *Service) request(a *job.Action, args map[string]string) (cores int, ram float64, pinned string) {
	ram = a.MinRAMFootprint()
	if args != nil {
		if v, ok := args[a.Name()]; ok {
			h, c, err := parseCoresArg(v)
			if err == nil {
				return c, ram, h
			}
		}
	}
	maxOffer := 0
	for _, hs := range s.hosts {
		if hs.host.Cores() > maxOffer {
			maxOffer = hs.host.Cores()
		}
	}
	cores = a.MaxNumCores()
	if cores > maxOffer {
		cores = maxOffer
	}
	if cores < a.MinNumCores() {
		cores = a.MinNumCores()
	}
	return cores, ram, ""
}

// parseCoresArg parses "N" or "host:N".
func parseCoresArg(value string) (host string, cores int, err error) {
	spec := value
	if i := strings.IndexByte(value, ':'); i >= 0 {
		host = value[:i]
		spec = value[i+1:]
		if host == "" {
			return "", 0, failure.NewInvalidArgument("malformed cores request %q", value)
		}
	}
	n, perr := strconv.Atoi(spec)
	if perr != nil || n < 1 {
		return "", 0, failure.NewInvalidArgument("malformed cores request %q", value)
	}
	return host, n, nil
}

// --- dispatch ---

// tryDispatchReadyActions walks pending jobs in submission order and their
// ready actions in name order, placing each on a host with enough free
// cores and RAM. Counters are debited before the executor starts.
func (s *Service) tryDispatchReadyActions() {
	if s.draining || !s.Up() {
		return
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	// A launch failure can settle a job mid-pass, so walk a snapshot.
	for _, entry := range append([]*jobEntry(nil), s.pending...) {
		if entry.job.State().Terminal() {
			continue
		}
		for _, a := range entry.job.ReadyActions() {
			if _, already := entry.running[a.Name()]; already {
				continue
			}
			cores, ram, pinned := s.request(a, entry.args)
			idx := s.selectHost(cores, ram, pinned)
			if idx < 0 {
				continue
			}
			s.launch(entry, a, s.hosts[idx], cores, ram)
		}
	}
	metrics.VirtualTime.Set(s.Kernel().Now())
}

func (s *Service) selectHost(cores int, ram float64, pinned string) int {
	candidates := make([]*HostFreeState, len(s.hosts))
	for i, hs := range s.hosts {
		free := &HostFreeState{Host: hs.host, FreeCores: hs.freeCores, FreeRAM: hs.freeRAM}
		if pinned != "" && hs.host.Name() != pinned {
			// Pins restrict the candidate set without disturbing
			// index stability.
			free.FreeCores = -1
		}
		candidates[i] = free
	}
	return s.placement(candidates, cores, ram)
}

func (s *Service) launch(entry *jobEntry, a *job.Action, hs *hostState, cores int, ram float64) {
	hs.freeCores -= cores
	hs.freeRAM -= ram

	exec := executor.New(s.Kernel(), a, hs.host, cores, ram, s.Port(), entry.timeout)
	exec.SimulateComputationAsSleep = s.SimulateComputationAsSleep
	exec.ThreadCreationOverhead = s.ThreadCreationOverhead
	if err := exec.Start(); err != nil {
		hs.freeCores += cores
		hs.freeRAM += ram
		a.Fail(s.Kernel().Now(), err)
		s.cascadeFailure(entry, a)
		s.settleJob(entry)
		return
	}
	entry.running[a.Name()] = &allocation{hs: hs, cores: cores, ram: ram, exec: exec}
	entry.job.SetState(job.JobRunning)
	metrics.ActionsDispatched.Inc()
	s.Logger().Debug().
		Str("job", entry.job.Name()).
		Str("action", a.Name()).
		Str("target_host", hs.host.Name()).
		Int("cores", cores).
		Msg("Action dispatched")
	s.publish(&events.Event{Type: events.EventActionStarted, Job: entry.job.Name(), Action: a.Name(), Host: hs.host.Name()})
}

// --- executor completion ---

func (s *Service) handleExecutorDone(d *executor.Done) {
	entry, tracked := s.jobs[d.Action.Job()]
	if !tracked {
		return // job already terminated or discarded
	}
	alloc, live := entry.running[d.Action.Name()]
	if !live {
		return // resources already re-credited by a kill path
	}
	s.release(entry, d.Action.Name(), alloc)

	now := s.Kernel().Now()
	switch d.Action.State() {
	case job.ActionCompleted:
		metrics.ActionsCompleted.Inc()
		s.publish(&events.Event{Type: events.EventActionCompleted, Job: entry.job.Name(), Action: d.Action.Name(), Host: alloc.hs.host.Name()})
		if d.Action.Kind() == job.KindFileCopy {
			s.publish(&events.Event{Type: events.EventFileCopyCompleted, Job: entry.job.Name(), Action: d.Action.Name()})
		}
	case job.ActionFailed:
		metrics.ActionsFailed.Inc()
		s.Logger().Info().Str("job", entry.job.Name()).Str("action", d.Action.Name()).Err(d.Action.FailureCause()).Float64("vt", now).Msg("Action failed")
		s.publish(&events.Event{Type: events.EventActionFailed, Job: entry.job.Name(), Action: d.Action.Name(), Cause: causeString(d.Action.FailureCause())})
		s.cascadeFailure(entry, d.Action)
	case job.ActionKilled:
		metrics.ActionsKilled.Inc()
		s.publish(&events.Event{Type: events.EventActionKilled, Job: entry.job.Name(), Action: d.Action.Name(), Cause: causeString(d.Action.FailureCause())})
		s.cascadeFailure(entry, d.Action)
	}
	s.settleJob(entry)
}

func (s *Service) release(entry *jobEntry, actionName string, alloc *allocation) {
	alloc.hs.freeCores += alloc.cores
	alloc.hs.freeRAM += alloc.ram
	delete(entry.running, actionName)
}

// cascadeFailure fails every transitive dependent that has not started.
func (s *Service) cascadeFailure(entry *jobEntry, failed *job.Action) {
	now := s.Kernel().Now()
	for _, dep := range entry.job.TransitiveSuccessors(failed) {
		if dep.State() == job.ActionNotReady || dep.State() == job.ActionReady {
			dep.Fail(now, &failure.ParentFailed{Parent: failed.Name(), Cause: failed.FailureCause()})
		}
	}
}

// settleJob emits the job's terminal notification once every action is
// terminal and nothing is running.
func (s *Service) settleJob(entry *jobEntry) {
	if entry.done || len(entry.running) > 0 {
		return
	}
	if len(entry.job.Actions()) > 0 && !entry.job.AllTerminal() {
		return
	}
	entry.done = true
	s.dropEntry(entry)

	if entry.job.AllCompleted() {
		entry.job.SetState(job.JobCompleted)
		metrics.JobsCompleted.Inc()
		s.Logger().Info().Str("job", entry.job.Name()).Float64("vt", s.Kernel().Now()).Msg("Job completed")
		s.publish(&events.Event{Type: events.EventJobCompleted, Job: entry.job.Name()})
		s.notify(entry, &JobCompleted{Payload: control(), Job: entry.job, Service: s.Name()})
		return
	}

	cause := failure.AggregateOf(entry.job.FailureCauses())
	entry.job.SetState(job.JobFailed)
	metrics.JobsFailed.Inc()
	s.Logger().Info().Str("job", entry.job.Name()).Err(cause).Float64("vt", s.Kernel().Now()).Msg("Job failed")
	s.publish(&events.Event{Type: events.EventJobFailed, Job: entry.job.Name(), Cause: causeString(cause)})
	s.notify(entry, &JobFailed{Payload: control(), Job: entry.job, Service: s.Name(), Cause: cause})
}

func (s *Service) notify(entry *jobEntry, msg kernel.Message) {
	if entry.notify == nil {
		return
	}
	if err := s.Actor().DPut(entry.notify, msg); err != nil {
		s.Logger().Debug().Err(err).Str("job", entry.job.Name()).Msg("Could not notify submitter")
	}
}

func (s *Service) dropEntry(entry *jobEntry) {
	delete(s.jobs, entry.job)
	for i, e := range s.pending {
		if e == entry {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// --- termination, host failures, stop ---

func (s *Service) handleTerminate(m *TerminateJobRequest) {
	entry, tracked := s.jobs[m.Job]
	if !tracked {
		s.Actor().DPut(m.ReplyPort, &TerminateJobAnswer{Payload: control(), Job: m.Job,
			Cause: failure.NewInvalidArgument("job %q is not pending or running here", safeJobName(m.Job))})
		return
	}
	s.killEntry(entry, &failure.JobKilled{Job: entry.job.Name()}, job.JobKilled)
	s.Actor().DPut(m.ReplyPort, &TerminateJobAnswer{Payload: control(), Job: m.Job, Success: true})
}

// killEntry kills everything a job is running, marks the rest KILLED, and
// emits the single JobFailed notification.
func (s *Service) killEntry(entry *jobEntry, cause error, terminal job.JobState) {
	now := s.Kernel().Now()
	for _, name := range sortedAllocationNames(entry.running) {
		alloc := entry.running[name]
		alloc.exec.Kill(cause)
		s.release(entry, name, alloc)
	}
	for _, a := range entry.job.Actions() {
		if !a.State().Terminal() {
			a.MarkKilled(now, cause)
			metrics.ActionsKilled.Inc()
			s.publish(&events.Event{Type: events.EventActionKilled, Job: entry.job.Name(), Action: a.Name(), Cause: causeString(cause)})
		}
	}
	if !entry.done {
		entry.done = true
		s.dropEntry(entry)
		entry.job.SetState(terminal)
		metrics.JobsFailed.Inc()
		s.publish(&events.Event{Type: events.EventJobKilled, Job: entry.job.Name(), Cause: causeString(cause)})
		s.notify(entry, &JobFailed{Payload: control(), Job: entry.job, Service: s.Name(), Cause: cause})
	}
}

func (s *Service) handleHostStateChange(m *hostStateChange) {
	if m.Up {
		s.Logger().Info().Str("target_host", m.Host.Name()).Msg("Managed host is back up")
		return
	}
	s.Logger().Warn().Str("target_host", m.Host.Name()).Msg("Managed host went down")
	s.publish(&events.Event{Type: events.EventHostTurnedOff, Host: m.Host.Name()})
	now := s.Kernel().Now()
	cause := &failure.HostError{Host: m.Host.Name()}

	for _, entry := range append([]*jobEntry(nil), s.pending...) {
		touched := false
		for _, name := range sortedAllocationNames(entry.running) {
			alloc := entry.running[name]
			if alloc.hs.host != m.Host {
				continue
			}
			action, _ := entry.job.ActionByName(name)
			s.release(entry, name, alloc)
			action.Fail(now, cause)
			metrics.ActionsFailed.Inc()
			s.publish(&events.Event{Type: events.EventActionFailed, Job: entry.job.Name(), Action: name, Cause: causeString(cause)})
			s.cascadeFailure(entry, action)
			touched = true
		}
		if touched {
			s.settleJob(entry)
		}
	}
}

func (s *Service) handleStop(m *StopRequest) bool {
	return s.stop(m.ReplyPort, m.Graceful, m.Cause)
}

// StopRequest is re-exported so the switch in main reads naturally.
type StopRequest = service.StopRequest

func (s *Service) stop(reply *kernel.Commport, graceful bool, cause error) bool {
	if graceful {
		s.SetUp(false)
		s.draining = true
		s.drainReply = reply
		if !s.anyRunning() {
			s.finishDrain()
			return true
		}
		return false
	}

	if cause == nil {
		cause = &failure.ServiceDown{Service: s.Name()}
	}
	for _, entry := range append([]*jobEntry(nil), s.pending...) {
		s.killEntry(entry, cause, job.JobFailed)
	}
	s.SetUp(false)
	s.Actor().DPut(reply, &service.DaemonStopped{Payload: control(), Service: s.Name()})
	return true
}

func (s *Service) anyRunning() bool {
	for _, entry := range s.pending {
		if len(entry.running) > 0 {
			return true
		}
	}
	return false
}

// finishDrain discontinues jobs with unfinished actions and acknowledges
// the stopper.
func (s *Service) finishDrain() {
	for _, entry := range append([]*jobEntry(nil), s.pending...) {
		if entry.job.AllTerminal() {
			s.settleJob(entry)
			continue
		}
		entry.done = true
		s.dropEntry(entry)
		entry.job.SetState(job.JobDiscontinued)
	}
	s.draining = false
	if s.drainReply != nil {
		s.Actor().DPut(s.drainReply, &service.DaemonStopped{Payload: control(), Service: s.Name()})
		s.drainReply = nil
	}
	s.SetUp(false)
}

// --- resource information ---

func (s *Service) handleResourceInfo(m *ResourceInfoRequest) {
	info := make(map[string]float64)
	var cause error
	switch m.Key {
	case "num_hosts":
		info["num_hosts"] = float64(len(s.hosts))
	case "num_cores":
		for _, hs := range s.hosts {
			info[hs.host.Name()] = float64(hs.host.Cores())
		}
	case "num_idle_cores":
		for _, hs := range s.hosts {
			info[hs.host.Name()] = float64(hs.freeCores)
		}
	case "flop_rates":
		for _, hs := range s.hosts {
			info[hs.host.Name()] = hs.host.Speed()
		}
	case "ram_capacities":
		for _, hs := range s.hosts {
			info[hs.host.Name()] = hs.host.RAM()
		}
	case "ram_availabilities":
		for _, hs := range s.hosts {
			info[hs.host.Name()] = hs.freeRAM
		}
	default:
		cause = failure.NewInvalidArgument("unknown resource information key %q", m.Key)
	}
	s.Actor().DPut(m.ReplyPort, &ResourceInfoAnswer{Payload: control(), Info: info, Cause: cause})
}

// --- helpers ---

func sortedAllocationNames(m map[string]*allocation) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	var c failure.Cause
	if errors.As(err, &c) {
		return c.CauseType()
	}
	return err.Error()
}

func safeJobName(j *job.CompoundJob) string {
	if j == nil {
		return "<nil>"
	}
	return j.Name()
}
