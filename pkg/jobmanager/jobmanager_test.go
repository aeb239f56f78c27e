package jobmanager_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/jobmanager"
	"github.com/meridian-sim/meridian/pkg/platform"
	"github.com/meridian-sim/meridian/pkg/service/compute"
	"github.com/meridian-sim/meridian/pkg/simulation"
)

func withManager(t *testing.T, fn func(c *simulation.Controller, jm *jobmanager.Manager, svc *compute.Service) error) {
	t.Helper()
	p, err := platform.New([]*platform.Host{{Name: "H", Speed: 1, Cores: 4, RAM: 8e9}})
	require.NoError(t, err)
	sim, err := simulation.New(p, simulation.WithSeed(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Terminate() })

	host, _ := sim.HostByName("H")
	svc := compute.New("bare-metal", host, nil)
	require.NoError(t, sim.AddService(svc))
	require.NoError(t, sim.CreateController(host, "controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		if err != nil {
			return err
		}
		return fn(c, jm, svc)
	}))
	require.NoError(t, sim.Launch())
}

func TestCreateCompoundJob(t *testing.T) {
	withManager(t, func(c *simulation.Controller, jm *jobmanager.Manager, svc *compute.Service) error {
		j, err := jm.CreateCompoundJob("named")
		require.NoError(t, err)
		assert.Equal(t, "named", j.Name())
		assert.Equal(t, job.JobNotSubmitted, j.State())

		anon, err := jm.CreateCompoundJob("")
		require.NoError(t, err)
		assert.NotEmpty(t, anon.Name())
		return nil
	})
}

func TestSubmitRules(t *testing.T) {
	withManager(t, func(c *simulation.Controller, jm *jobmanager.Manager, svc *compute.Service) error {
		t.Run("foreign job rejected", func(t *testing.T) {
			foreign, err := job.NewCompoundJob("foreign")
			require.NoError(t, err)
			err = jm.SubmitJob(foreign, svc, nil)
			var ia *failure.InvalidArgument
			assert.ErrorAs(t, err, &ia)
		})

		t.Run("double submission rejected", func(t *testing.T) {
			j, _ := jm.CreateCompoundJob("once")
			_, err := j.AddSleepAction("nap", 1)
			require.NoError(t, err)
			require.NoError(t, jm.SubmitJob(j, svc, nil))
			// The idle host takes the nap at once, so the job has already
			// moved on from PENDING to RUNNING.
			assert.Equal(t, job.JobRunning, j.State())

			err = jm.SubmitJob(j, svc, nil)
			var ia *failure.InvalidArgument
			assert.ErrorAs(t, err, &ia)

			// Drain the completion so the simulation finishes clean.
			_, err = jm.WaitForNextEvent(-1)
			assert.NoError(t, err)
		})
		return nil
	})
}

func TestEventRepublication(t *testing.T) {
	withManager(t, func(c *simulation.Controller, jm *jobmanager.Manager, svc *compute.Service) error {
		good, _ := jm.CreateCompoundJob("good")
		_, err := good.AddSleepAction("nap", 5)
		require.NoError(t, err)
		require.NoError(t, jm.SubmitJob(good, svc, nil))

		bad, _ := jm.CreateCompoundJob("bad")
		_, err = bad.AddCustomAction("explode", func(env job.ExecutionEnv) error {
			return &failure.FatalFailure{Reason: "bug"}
		}, nil)
		require.NoError(t, err)
		require.NoError(t, jm.SubmitJob(bad, svc, nil))

		var completed, failed int
		for i := 0; i < 2; i++ {
			ev, err := jm.WaitForNextEvent(-1)
			require.NoError(t, err)
			switch e := ev.(type) {
			case *jobmanager.CompoundJobCompletedEvent:
				completed++
				assert.Equal(t, "good", e.Job.Name())
				assert.Equal(t, "bare-metal", e.Service)
			case *jobmanager.CompoundJobFailedEvent:
				failed++
				assert.Equal(t, "bad", e.Job.Name())
				var ff *failure.FatalFailure
				assert.ErrorAs(t, e.Cause, &ff)
			}
		}
		assert.Equal(t, 1, completed)
		assert.Equal(t, 1, failed)
		return nil
	})
}

func TestWaitForNextEventTimeout(t *testing.T) {
	withManager(t, func(c *simulation.Controller, jm *jobmanager.Manager, svc *compute.Service) error {
		_, err := jm.WaitForNextEvent(3)
		var to *failure.OperationTimeout
		assert.ErrorAs(t, err, &to)
		assert.Equal(t, 3.0, c.Now())
		return nil
	})
}

func TestForgetJob(t *testing.T) {
	withManager(t, func(c *simulation.Controller, jm *jobmanager.Manager, svc *compute.Service) error {
		j, _ := jm.CreateCompoundJob("forgettable")
		_, err := j.AddSleepAction("nap", 10)
		require.NoError(t, err)
		require.NoError(t, jm.SubmitJob(j, svc, nil))

		// Still running: cannot forget.
		err = jm.ForgetJob(j)
		var ia *failure.InvalidArgument
		assert.ErrorAs(t, err, &ia)

		_, err = jm.WaitForNextEvent(-1)
		require.NoError(t, err)

		// Terminal: forget works, twice is a no-op.
		assert.NoError(t, jm.ForgetJob(j))
		assert.NoError(t, jm.ForgetJob(j))

		// A never-submitted job can be forgotten freely.
		loose, _ := jm.CreateCompoundJob("loose")
		assert.NoError(t, jm.ForgetJob(loose))
		return nil
	})
}

func TestTerminateUnsubmittedJob(t *testing.T) {
	withManager(t, func(c *simulation.Controller, jm *jobmanager.Manager, svc *compute.Service) error {
		j, _ := jm.CreateCompoundJob("idle")
		err := jm.TerminateJob(j)
		var ia *failure.InvalidArgument
		assert.ErrorAs(t, err, &ia)
		return nil
	})
}
