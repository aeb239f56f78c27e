package simulation_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sim/meridian/pkg/events"
	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/jobmanager"
	"github.com/meridian-sim/meridian/pkg/platform"
	"github.com/meridian-sim/meridian/pkg/service/compute"
	"github.com/meridian-sim/meridian/pkg/service/registry"
	"github.com/meridian-sim/meridian/pkg/service/storage"
	"github.com/meridian-sim/meridian/pkg/simulation"
)

func twoHostPlatform(t *testing.T) *platform.Platform {
	t.Helper()
	p, err := platform.New([]*platform.Host{
		{Name: "H1", Speed: 1, Cores: 2, RAM: 8e9, Disks: []*platform.Disk{
			{Mount: "/data", Capacity: 1e9, ReadBW: 1e6, WriteBW: 1e6},
		}},
		{Name: "H2", Speed: 1, Cores: 2, RAM: 8e9},
	})
	require.NoError(t, err)
	require.NoError(t, p.AddRoute("H1", "H2", &platform.Link{Name: "lan", Bandwidth: 1e6, Latency: 0}))
	return p
}

func TestFileRegistryUniqueness(t *testing.T) {
	sim, err := simulation.New(twoHostPlatform(t))
	require.NoError(t, err)
	defer func() { _ = sim.Terminate() }()

	f, err := sim.AddFile("input", 1000)
	require.NoError(t, err)
	assert.Equal(t, "input", f.ID())

	_, err = sim.AddFile("input", 500)
	var ia *failure.InvalidArgument
	assert.ErrorAs(t, err, &ia)

	got, ok := sim.FileByID("input")
	require.True(t, ok)
	assert.Equal(t, f, got)
	assert.Len(t, sim.Files(), 1)
}

func TestRegistryClearedAfterTerminate(t *testing.T) {
	sim, err := simulation.New(twoHostPlatform(t))
	require.NoError(t, err)
	_, err = sim.AddFile("input", 1000)
	require.NoError(t, err)
	require.NoError(t, sim.Terminate())

	_, err = sim.AddFile("late", 1)
	var ia *failure.InvalidArgument
	assert.ErrorAs(t, err, &ia)

	// A fresh simulation starts with a clean registry.
	sim2, err := simulation.New(twoHostPlatform(t))
	require.NoError(t, err)
	defer func() { _ = sim2.Terminate() }()
	_, err = sim2.AddFile("input", 1000)
	assert.NoError(t, err)
}

// runWorkload runs a fixed two-job workload and returns the observed event
// sequence, rendered to strings.
func runWorkload(t *testing.T, seed int64) []string {
	t.Helper()
	sim, err := simulation.New(twoHostPlatform(t), simulation.WithSeed(seed))
	require.NoError(t, err)
	defer func() { _ = sim.Terminate() }()

	var lines []string
	sim.Broker().RegisterHandler(func(ev *events.Event) {
		lines = append(lines, fmt.Sprintf("%g|%s|%s|%s|%s", ev.VirtualTime, ev.Type, ev.Job, ev.Action, ev.Cause))
	})

	h1, _ := sim.HostByName("H1")
	svc := compute.New("bare-metal", h1, nil, compute.WithBroker(sim.Broker()))
	require.NoError(t, sim.AddService(svc))

	require.NoError(t, sim.CreateController(h1, "controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		if err != nil {
			return err
		}
		m, _ := job.AmdahlModel(1)
		for _, name := range []string{"alpha", "beta"} {
			j, _ := jm.CreateCompoundJob(name)
			a, _ := j.AddComputeAction("one", 10, 0, 1, 1, m)
			b, _ := j.AddComputeAction("two", 20, 0, 1, 2, m)
			require.NoError(t, j.AddActionDependency(a, b))
			require.NoError(t, jm.SubmitJob(j, svc, nil))
		}
		for i := 0; i < 2; i++ {
			if _, err := jm.WaitForNextEvent(-1); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, sim.Launch())
	return lines
}

func TestDeterministicRuns(t *testing.T) {
	first := runWorkload(t, 42)
	second := runWorkload(t, 42)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second, "two identical runs must produce identical event sequences")
}

func TestTraceRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	sim, err := simulation.New(twoHostPlatform(t), simulation.WithTraceFile(path))
	require.NoError(t, err)

	h1, _ := sim.HostByName("H1")
	svc := compute.New("bare-metal", h1, nil, compute.WithBroker(sim.Broker()))
	require.NoError(t, sim.AddService(svc))
	require.NoError(t, sim.CreateController(h1, "controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		if err != nil {
			return err
		}
		j, _ := jm.CreateCompoundJob("traced")
		_, err = j.AddSleepAction("nap", 3)
		require.NoError(t, err)
		sim.TrackJob(j)
		require.NoError(t, jm.SubmitJob(j, svc, nil))
		_, err = jm.WaitForNextEvent(-1)
		return err
	}))
	require.NoError(t, sim.Launch())
	require.NoError(t, sim.Terminate())

	assert.FileExists(t, path)
}

// End-to-end file pipeline: write, registry-add, copy, read, delete.
func TestFileActionPipeline(t *testing.T) {
	sim, err := simulation.New(twoHostPlatform(t))
	require.NoError(t, err)
	defer func() { _ = sim.Terminate() }()

	h1, _ := sim.HostByName("H1")
	h2, _ := sim.HostByName("H2")
	ss1 := storage.New("ss1", h1)
	ss2 := storage.New("ss2", h2)
	reg := registry.New("registry", h1)
	svc := compute.New("bare-metal", h1, nil, compute.WithBroker(sim.Broker()))
	for _, s := range []simulation.Startable{ss1, ss2, reg, svc} {
		require.NoError(t, sim.AddService(s))
	}

	file, err := sim.AddFile("dataset", 1e6)
	require.NoError(t, err)
	src, err := job.Location(ss1, "/data/in")
	require.NoError(t, err)
	dst, err := job.Location(ss2, "/scratch")
	require.NoError(t, err)

	var actions []*job.Action
	require.NoError(t, sim.CreateController(h1, "controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		if err != nil {
			return err
		}
		j, _ := jm.CreateCompoundJob("pipeline")
		write, _ := j.AddFileWriteAction("a-write", file, src)
		regAdd, _ := j.AddFileRegistryAddAction("b-register", reg, file, src)
		cp, _ := j.AddFileCopyAction("c-copy", file, src, dst)
		read, _ := j.AddFileReadAction("d-read", file, dst, 0)
		del, _ := j.AddFileDeleteAction("e-delete", file, src)
		regDel, _ := j.AddFileRegistryDeleteAction("f-deregister", reg, file, src)
		actions = []*job.Action{write, regAdd, cp, read, del, regDel}

		require.NoError(t, j.AddActionDependency(write, regAdd))
		require.NoError(t, j.AddActionDependency(regAdd, cp))
		require.NoError(t, j.AddActionDependency(cp, read))
		require.NoError(t, j.AddActionDependency(read, del))
		require.NoError(t, j.AddActionDependency(del, regDel))

		require.NoError(t, jm.SubmitJob(j, svc, nil))
		ev, err := jm.WaitForNextEvent(-1)
		require.NoError(t, err)
		_, ok := ev.(*jobmanager.CompoundJobCompletedEvent)
		assert.True(t, ok, "expected completion, got %T", ev)
		return nil
	}))
	require.NoError(t, sim.Launch())

	for _, a := range actions {
		assert.Equal(t, job.ActionCompleted, a.State(), "action %s", a.Name())
	}
	assert.True(t, ss2.LookupFile(file, dst))
	assert.False(t, ss1.LookupFile(file, src))
}

// A read of a file that is nowhere fails the action with FileNotFound.
func TestMissingFileFailsAction(t *testing.T) {
	sim, err := simulation.New(twoHostPlatform(t))
	require.NoError(t, err)
	defer func() { _ = sim.Terminate() }()

	h1, _ := sim.HostByName("H1")
	ss1 := storage.New("ss1", h1)
	svc := compute.New("bare-metal", h1, nil)
	require.NoError(t, sim.AddService(ss1))
	require.NoError(t, sim.AddService(svc))

	file, _ := sim.AddFile("ghost", 100)
	loc, _ := job.Location(ss1, "/data/void")

	var read *job.Action
	require.NoError(t, sim.CreateController(h1, "controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		if err != nil {
			return err
		}
		j, _ := jm.CreateCompoundJob("doomed")
		read, _ = j.AddFileReadAction("read", file, loc, 0)
		require.NoError(t, jm.SubmitJob(j, svc, nil))
		ev, err := jm.WaitForNextEvent(-1)
		require.NoError(t, err)
		failed, ok := ev.(*jobmanager.CompoundJobFailedEvent)
		require.True(t, ok, "expected failure, got %T", ev)
		var fnf *failure.FileNotFound
		assert.ErrorAs(t, failed.Cause, &fnf)
		return nil
	}))
	require.NoError(t, sim.Launch())

	assert.Equal(t, job.ActionFailed, read.State())
}
