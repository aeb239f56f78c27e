package workload

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/jobmanager"
	"github.com/meridian-sim/meridian/pkg/platform"
)

// ActionSpec declares one action of a workload job. Compute and sleep
// actions are expressible declaratively; the richer variants (file, custom,
// MPI) are built through the programmatic API.
type ActionSpec struct {
	Name       string  `yaml:"name"`
	Type       string  `yaml:"type"` // "compute" or "sleep"
	Flops      string  `yaml:"flops"`
	MinCores   int     `yaml:"min_cores"`
	MaxCores   int     `yaml:"max_cores"`
	RAM        string  `yaml:"ram"`
	Model      string  `yaml:"model"` // "amdahl" (default) or "constant-efficiency"
	Alpha      float64 `yaml:"alpha"`
	Efficiency float64 `yaml:"efficiency"`
	Duration   string  `yaml:"duration"`
}

// DependencySpec declares one happens-before edge.
type DependencySpec struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// JobSpec declares one compound job.
type JobSpec struct {
	Name         string            `yaml:"name"`
	Actions      []ActionSpec      `yaml:"actions"`
	Dependencies []DependencySpec  `yaml:"dependencies"`
	Args         map[string]string `yaml:"args"`
}

// Workload is a parsed workload document.
type Workload struct {
	Jobs []JobSpec `yaml:"jobs"`
}

// Load reads and parses a workload file.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML workload document.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workload document: %w", err)
	}
	if len(w.Jobs) == 0 {
		return nil, failure.NewInvalidArgument("workload declares no jobs")
	}
	return &w, nil
}

// Build materializes a job spec through a job manager.
func Build(jm *jobmanager.Manager, spec *JobSpec) (*job.CompoundJob, error) {
	j, err := jm.CreateCompoundJob(spec.Name)
	if err != nil {
		return nil, err
	}
	for i := range spec.Actions {
		if _, err := buildAction(j, &spec.Actions[i]); err != nil {
			return nil, err
		}
	}
	for _, dep := range spec.Dependencies {
		parent, ok := j.ActionByName(dep.Parent)
		if !ok {
			return nil, failure.NewInvalidArgument("job %q: dependency references unknown action %q", spec.Name, dep.Parent)
		}
		child, ok := j.ActionByName(dep.Child)
		if !ok {
			return nil, failure.NewInvalidArgument("job %q: dependency references unknown action %q", spec.Name, dep.Child)
		}
		if err := j.AddActionDependency(parent, child); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func buildAction(j *job.CompoundJob, spec *ActionSpec) (*job.Action, error) {
	switch spec.Type {
	case "compute":
		flops, err := platform.ParseFlopRate(spec.Flops)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		ram := 0.0
		if spec.RAM != "" {
			if ram, err = platform.ParseBytes(spec.RAM); err != nil {
				return nil, fmt.Errorf("action %q: %w", spec.Name, err)
			}
		}
		minCores := spec.MinCores
		if minCores == 0 {
			minCores = 1
		}
		maxCores := spec.MaxCores
		if maxCores == 0 {
			maxCores = minCores
		}
		model, err := buildModel(spec)
		if err != nil {
			return nil, err
		}
		return j.AddComputeAction(spec.Name, flops, ram, minCores, maxCores, model)
	case "sleep":
		d, err := platform.ParseLatency(spec.Duration)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		return j.AddSleepAction(spec.Name, d)
	default:
		return nil, failure.NewInvalidArgument("action %q: unsupported type %q", spec.Name, spec.Type)
	}
}

func buildModel(spec *ActionSpec) (job.ParallelModel, error) {
	switch spec.Model {
	case "", "amdahl":
		alpha := spec.Alpha
		if spec.Model == "" && alpha == 0 {
			alpha = 1 // perfectly parallel by default
		}
		m, err := job.AmdahlModel(alpha)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		return m, nil
	case "constant-efficiency":
		m, err := job.ConstantEfficiencyModel(spec.Efficiency)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		return m, nil
	}
	return nil, failure.NewInvalidArgument("action %q: unknown parallel model %q", spec.Name, spec.Model)
}
