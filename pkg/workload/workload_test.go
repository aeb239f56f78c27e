package workload_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/jobmanager"
	"github.com/meridian-sim/meridian/pkg/platform"
	"github.com/meridian-sim/meridian/pkg/service/compute"
	"github.com/meridian-sim/meridian/pkg/simulation"
	"github.com/meridian-sim/meridian/pkg/workload"
)

const sampleWorkload = `
jobs:
  - name: pipeline
    actions:
      - name: stage-a
        type: compute
        flops: 100f
        min_cores: 1
        max_cores: 4
        alpha: 0.5
      - name: cooldown
        type: sleep
        duration: 5s
    dependencies:
      - parent: stage-a
        child: cooldown
    args:
      stage-a: "2"
`

func TestParseWorkload(t *testing.T) {
	w, err := workload.Parse([]byte(sampleWorkload))
	require.NoError(t, err)
	require.Len(t, w.Jobs, 1)
	spec := w.Jobs[0]
	assert.Equal(t, "pipeline", spec.Name)
	require.Len(t, spec.Actions, 2)
	assert.Equal(t, "compute", spec.Actions[0].Type)
	assert.Equal(t, 0.5, spec.Actions[0].Alpha)
	assert.Equal(t, map[string]string{"stage-a": "2"}, spec.Args)
}

func TestParseWorkloadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"no jobs", "jobs: []"},
		{"broken yaml", "jobs: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workload.Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestBuildAndRunWorkload(t *testing.T) {
	w, err := workload.Parse([]byte(sampleWorkload))
	require.NoError(t, err)

	p, err := platform.New([]*platform.Host{{Name: "H", Speed: 1, Cores: 4, RAM: 8e9}})
	require.NoError(t, err)
	sim, err := simulation.New(p)
	require.NoError(t, err)
	defer func() { _ = sim.Terminate() }()

	host, _ := sim.HostByName("H")
	svc := compute.New("bare-metal", host, nil)
	require.NoError(t, sim.AddService(svc))

	var built *job.CompoundJob
	require.NoError(t, sim.CreateController(host, "controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		if err != nil {
			return err
		}
		built, err = workload.Build(jm, &w.Jobs[0])
		require.NoError(t, err)
		require.NoError(t, jm.SubmitJob(built, svc, w.Jobs[0].Args))
		ev, err := jm.WaitForNextEvent(-1)
		require.NoError(t, err)
		_, ok := ev.(*jobmanager.CompoundJobCompletedEvent)
		assert.True(t, ok, "expected completion, got %T", ev)
		return nil
	}))
	require.NoError(t, sim.Launch())

	require.NotNil(t, built)
	a, _ := built.ActionByName("stage-a")
	b, _ := built.ActionByName("cooldown")
	// 100 flops, alpha 0.5, forced onto 2 cores: 50 + 25 = 75s, then 5s.
	assert.InDelta(t, 75.0, a.EndDate(), 1e-9)
	assert.InDelta(t, 75.0, b.StartDate(), 1e-9)
	assert.InDelta(t, 80.0, b.EndDate(), 1e-9)
	assert.Equal(t, job.JobCompleted, built.State())
}

func TestBuildErrors(t *testing.T) {
	p, _ := platform.New([]*platform.Host{{Name: "H", Speed: 1, Cores: 1, RAM: 0}})
	sim, err := simulation.New(p)
	require.NoError(t, err)
	defer func() { _ = sim.Terminate() }()
	host, _ := sim.HostByName("H")

	require.NoError(t, sim.CreateController(host, "controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		require.NoError(t, err)

		tests := []struct {
			name string
			spec workload.JobSpec
		}{
			{"unknown action type", workload.JobSpec{Name: "x1", Actions: []workload.ActionSpec{{Name: "a", Type: "teleport"}}}},
			{"bad flops", workload.JobSpec{Name: "x2", Actions: []workload.ActionSpec{{Name: "a", Type: "compute", Flops: "many"}}}},
			{"unknown dependency endpoint", workload.JobSpec{
				Name:         "x3",
				Actions:      []workload.ActionSpec{{Name: "a", Type: "sleep", Duration: "1s"}},
				Dependencies: []workload.DependencySpec{{Parent: "a", Child: "nope"}},
			}},
			{"unknown model", workload.JobSpec{Name: "x4", Actions: []workload.ActionSpec{{Name: "a", Type: "compute", Flops: "1f", Model: "magic"}}}},
		}
		for _, tt := range tests {
			spec := tt.spec
			_, err := workload.Build(jm, &spec)
			assert.Error(t, err, tt.name)
		}
		return nil
	}))
	require.NoError(t, sim.Launch())
}
