package job

import (
	"sort"

	"github.com/meridian-sim/meridian/pkg/failure"
)

// JobState is the compound-job state machine:
// NOT_SUBMITTED → PENDING → RUNNING → terminal.
type JobState int

const (
	JobNotSubmitted JobState = iota
	JobPending
	JobRunning
	JobCompleted
	JobFailed
	JobKilled
	JobDiscontinued
)

// String returns the canonical state name.
func (s JobState) String() string {
	switch s {
	case JobNotSubmitted:
		return "NOT_SUBMITTED"
	case JobPending:
		return "PENDING"
	case JobRunning:
		return "RUNNING"
	case JobCompleted:
		return "COMPLETED"
	case JobFailed:
		return "FAILED"
	case JobKilled:
		return "KILLED"
	case JobDiscontinued:
		return "DISCONTINUED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the state is terminal.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobKilled, JobDiscontinued:
		return true
	}
	return false
}

// CyclicDependency is returned when an edge would close a cycle; the DAG is
// left unchanged.
type CyclicDependency struct {
	Parent string
	Child  string
}

func (e *CyclicDependency) Error() string {
	return "dependency " + e.Parent + " -> " + e.Child + " would create a cycle"
}

// CompoundJob is a named DAG of actions submitted as one unit. The job
// exclusively owns its actions; the DAG freezes once the job leaves
// NOT_SUBMITTED.
type CompoundJob struct {
	name  string
	state JobState

	actions []*Action // insertion order
	byName  map[string]*Action

	parents  map[string][]*Action
	children map[string][]*Action
}

// NewCompoundJob builds an empty job. The job manager is the intended
// factory; tests may construct jobs directly.
func NewCompoundJob(name string) (*CompoundJob, error) {
	if name == "" {
		return nil, failure.NewInvalidArgument("empty job name")
	}
	return &CompoundJob{
		name:     name,
		byName:   make(map[string]*Action),
		parents:  make(map[string][]*Action),
		children: make(map[string][]*Action),
	}, nil
}

// Name returns the job name.
func (j *CompoundJob) Name() string { return j.name }

// State returns the job state.
func (j *CompoundJob) State() JobState { return j.state }

// SetState transitions the job. Terminal states are sticky.
func (j *CompoundJob) SetState(s JobState) {
	if j.state.Terminal() {
		return
	}
	j.state = s
}

// Actions returns the actions in insertion order.
func (j *CompoundJob) Actions() []*Action { return j.actions }

// ActionByName looks an action up.
func (j *CompoundJob) ActionByName(name string) (*Action, bool) {
	a, ok := j.byName[name]
	return a, ok
}

// Parents returns an action's direct predecessors.
func (j *CompoundJob) Parents(a *Action) []*Action { return j.parents[a.name] }

// Children returns an action's direct successors.
func (j *CompoundJob) Children(a *Action) []*Action { return j.children[a.name] }

func (j *CompoundJob) addAction(a *Action) (*Action, error) {
	if a.name == "" {
		return nil, failure.NewInvalidArgument("job %q: empty action name", j.name)
	}
	if j.state != JobNotSubmitted {
		return nil, failure.NewInvalidArgument("job %q: cannot add actions after submission", j.name)
	}
	if _, dup := j.byName[a.name]; dup {
		return nil, failure.NewInvalidArgument("job %q: duplicate action name %q", j.name, a.name)
	}
	a.job = j
	a.state = ActionReady // no predecessors yet
	j.actions = append(j.actions, a)
	j.byName[a.name] = a
	return a, nil
}

// AddComputeAction adds a compute action.
func (j *CompoundJob) AddComputeAction(name string, flops float64, ram float64, minCores, maxCores int, model ParallelModel) (*Action, error) {
	if flops < 0 || minCores < 1 || maxCores < minCores || ram < 0 {
		return nil, failure.NewInvalidArgument("job %q action %q: invalid compute parameters", j.name, name)
	}
	if model == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil parallel model", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindCompute, compute: &ComputeSpec{
		Flops: flops, RAM: ram, MinNumCores: minCores, MaxNumCores: maxCores, ParallelModel: model,
	}})
}

// AddSleepAction adds a sleep action.
func (j *CompoundJob) AddSleepAction(name string, duration float64) (*Action, error) {
	if duration < 0 {
		return nil, failure.NewInvalidArgument("job %q action %q: negative sleep duration", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindSleep, sleep: &SleepSpec{Duration: duration}})
}

// AddFileReadAction adds a read of a file at a location. numBytes caps the
// transfer; 0 reads the whole file.
func (j *CompoundJob) AddFileReadAction(name string, f *DataFile, loc *FileLocation, numBytes float64) (*Action, error) {
	if f == nil || loc == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil file or location", j.name, name)
	}
	if numBytes < 0 || numBytes > f.Size() {
		return nil, failure.NewInvalidArgument("job %q action %q: invalid byte count %g", j.name, name, numBytes)
	}
	return j.addAction(&Action{name: name, kind: KindFileRead, file: &FileSpec{File: f, Source: loc, NumBytes: numBytes}})
}

// AddFileWriteAction adds a write of a file to a location.
func (j *CompoundJob) AddFileWriteAction(name string, f *DataFile, loc *FileLocation) (*Action, error) {
	if f == nil || loc == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil file or location", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindFileWrite, file: &FileSpec{File: f, Destination: loc}})
}

// AddFileCopyAction adds a copy of a file between two locations.
func (j *CompoundJob) AddFileCopyAction(name string, f *DataFile, src, dst *FileLocation) (*Action, error) {
	if f == nil || src == nil || dst == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil file or location", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindFileCopy, file: &FileSpec{File: f, Source: src, Destination: dst}})
}

// AddFileDeleteAction adds a delete of a file at a location.
func (j *CompoundJob) AddFileDeleteAction(name string, f *DataFile, loc *FileLocation) (*Action, error) {
	if f == nil || loc == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil file or location", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindFileDelete, file: &FileSpec{File: f, Source: loc}})
}

// AddFileRegistryAddAction adds a registration of a file location with a
// file registry service.
func (j *CompoundJob) AddFileRegistryAddAction(name string, registry StorageProvider, f *DataFile, loc *FileLocation) (*Action, error) {
	if registry == nil || f == nil || loc == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil registry, file or location", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindFileRegistryAdd, file: &FileSpec{File: f, Source: loc, Registry: registry}})
}

// AddFileRegistryDeleteAction adds a deregistration of a file location from
// a file registry service.
func (j *CompoundJob) AddFileRegistryDeleteAction(name string, registry StorageProvider, f *DataFile, loc *FileLocation) (*Action, error) {
	if registry == nil || f == nil || loc == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil registry, file or location", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindFileRegistryDelete, file: &FileSpec{File: f, Source: loc, Registry: registry}})
}

// AddCustomAction adds an action running user code. terminate may be nil.
func (j *CompoundJob) AddCustomAction(name string, run func(env ExecutionEnv) error, terminate func(env ExecutionEnv)) (*Action, error) {
	if run == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil run function", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindCustom, custom: &CustomSpec{Run: run, Terminate: terminate}})
}

// AddMPIAction adds an MPI action: main runs once per rank.
func (j *CompoundJob) AddMPIAction(name string, numProcesses, coresPerProcess int, main func(rank MPIRank) error) (*Action, error) {
	if numProcesses < 1 || coresPerProcess < 1 {
		return nil, failure.NewInvalidArgument("job %q action %q: invalid MPI geometry", j.name, name)
	}
	if main == nil {
		return nil, failure.NewInvalidArgument("job %q action %q: nil MPI main", j.name, name)
	}
	return j.addAction(&Action{name: name, kind: KindMPI, mpi: &MPISpec{
		NumProcesses: numProcesses, CoresPerProcess: coresPerProcess, Main: main,
	}})
}

// AddActionDependency records that child runs only after parent completes.
// A directed BFS from child looking for parent rejects edges that would
// close a cycle, leaving the DAG unchanged.
func (j *CompoundJob) AddActionDependency(parent, child *Action) error {
	if parent == nil || child == nil {
		return failure.NewInvalidArgument("job %q: nil action in dependency", j.name)
	}
	if parent.job != j || child.job != j {
		return failure.NewInvalidArgument("job %q: dependency on action from another job", j.name)
	}
	if parent == child {
		return &CyclicDependency{Parent: parent.name, Child: child.name}
	}
	if j.state != JobNotSubmitted {
		return failure.NewInvalidArgument("job %q: cannot add dependencies after submission", j.name)
	}
	if j.pathExists(child, parent) {
		return &CyclicDependency{Parent: parent.name, Child: child.name}
	}
	j.parents[child.name] = append(j.parents[child.name], parent)
	j.children[parent.name] = append(j.children[parent.name], child)
	child.RefreshReadiness()
	return nil
}

// pathExists walks child edges breadth-first from src looking for dst.
func (j *CompoundJob) pathExists(src, dst *Action) bool {
	visited := map[string]bool{src.name: true}
	queue := []*Action{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range j.children[cur.name] {
			if next == dst {
				return true
			}
			if !visited[next.name] {
				visited[next.name] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// ReadyActions returns every action whose predecessors are all COMPLETED
// and which has not itself started, sorted by name for deterministic
// dispatch.
func (j *CompoundJob) ReadyActions() []*Action {
	var ready []*Action
	for _, a := range j.actions {
		a.RefreshReadiness()
		if a.state == ActionReady {
			ready = append(ready, a)
		}
	}
	sort.Slice(ready, func(x, y int) bool { return ready[x].name < ready[y].name })
	return ready
}

// TransitiveSuccessors returns every action reachable from a, excluded.
func (j *CompoundJob) TransitiveSuccessors(a *Action) []*Action {
	visited := map[string]bool{a.name: true}
	var out []*Action
	queue := []*Action{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range j.children[cur.name] {
			if !visited[next.name] {
				visited[next.name] = true
				out = append(out, next)
				queue = append(queue, next)
			}
		}
	}
	return out
}

// AllTerminal reports whether every action reached a terminal state.
func (j *CompoundJob) AllTerminal() bool {
	for _, a := range j.actions {
		if !a.state.Terminal() {
			return false
		}
	}
	return true
}

// AllCompleted reports whether every action COMPLETED.
func (j *CompoundJob) AllCompleted() bool {
	for _, a := range j.actions {
		if a.state != ActionCompleted {
			return false
		}
	}
	return true
}

// FailureCauses collects the causes of failed and killed actions in
// insertion order, for aggregation.
func (j *CompoundJob) FailureCauses() []error {
	var causes []error
	for _, a := range j.actions {
		if a.cause != nil {
			causes = append(causes, a.cause)
		}
	}
	return causes
}
