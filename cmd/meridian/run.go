package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/jobmanager"
	"github.com/meridian-sim/meridian/pkg/log"
	"github.com/meridian-sim/meridian/pkg/platform"
	"github.com/meridian-sim/meridian/pkg/service/compute"
	"github.com/meridian-sim/meridian/pkg/simulation"
	"github.com/meridian-sim/meridian/pkg/workload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workload against a platform",
	RunE:  runSimulation,
}

func init() {
	runCmd.Flags().String("platform", "", "Platform description file (required)")
	runCmd.Flags().String("workload", "", "Workload description file (required)")
	runCmd.Flags().Int64("seed", 0, "RNG seed; equal seeds give identical runs")
	runCmd.Flags().String("trace-file", "", "Write the run trace to this bolt file")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().String("service-host", "", "Host running the compute service (default: first platform host)")
	runCmd.Flags().String("placement", "first-fit", "Host selection policy: first-fit, best-fit, round-robin")
	_ = runCmd.MarkFlagRequired("platform")
	_ = runCmd.MarkFlagRequired("workload")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	platformPath, _ := cmd.Flags().GetString("platform")
	workloadPath, _ := cmd.Flags().GetString("workload")
	seed, _ := cmd.Flags().GetInt64("seed")
	traceFile, _ := cmd.Flags().GetString("trace-file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	serviceHost, _ := cmd.Flags().GetString("service-host")
	placementName, _ := cmd.Flags().GetString("placement")

	p, err := platform.Load(platformPath)
	if err != nil {
		return err
	}
	w, err := workload.Load(workloadPath)
	if err != nil {
		return err
	}
	placement, err := placementByName(placementName)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Errorf("Metrics server failed", err)
			}
		}()
	}

	opts := []simulation.Option{simulation.WithSeed(seed)}
	if traceFile != "" {
		opts = append(opts, simulation.WithTraceFile(traceFile))
	}
	sim, err := simulation.New(p, opts...)
	if err != nil {
		return err
	}

	if serviceHost == "" {
		serviceHost = p.Hosts()[0].Name
	}
	svcHost, err := sim.HostByName(serviceHost)
	if err != nil {
		return err
	}
	svc := compute.New("bare-metal", svcHost, nil,
		compute.WithPlacement(placement),
		compute.WithBroker(sim.Broker()),
	)
	if err := sim.AddService(svc); err != nil {
		return err
	}

	var outcomes []string
	err = sim.CreateController(svcHost, "workload-controller", func(c *simulation.Controller) error {
		jm, err := jobmanager.New(c.Kernel(), c.Actor())
		if err != nil {
			return err
		}
		submitted := 0
		for i := range w.Jobs {
			spec := &w.Jobs[i]
			j, err := workload.Build(jm, spec)
			if err != nil {
				return err
			}
			sim.TrackJob(j)
			if err := jm.SubmitJob(j, svc, spec.Args); err != nil {
				outcomes = append(outcomes, fmt.Sprintf("%s: rejected (%v)", j.Name(), err))
				continue
			}
			submitted++
		}
		for i := 0; i < submitted; i++ {
			ev, err := jm.WaitForNextEvent(-1)
			if err != nil {
				return err
			}
			switch e := ev.(type) {
			case *jobmanager.CompoundJobCompletedEvent:
				outcomes = append(outcomes, fmt.Sprintf("%s: completed at vt=%g", e.Job.Name(), c.Now()))
			case *jobmanager.CompoundJobFailedEvent:
				outcomes = append(outcomes, fmt.Sprintf("%s: failed at vt=%g (%v)", e.Job.Name(), c.Now(), e.Cause))
			}
		}
		return svc.Stop(c.Actor(), true, nil)
	})
	if err != nil {
		return err
	}

	if err := sim.Launch(); err != nil {
		return err
	}
	defer func() {
		if terr := sim.Terminate(); terr != nil {
			log.Errorf("Failed to finalize simulation", terr)
		}
	}()

	fmt.Printf("Simulation finished at virtual time %g\n", sim.Now())
	for _, line := range outcomes {
		fmt.Println("  " + line)
	}
	for _, j := range sim.TrackedJobs() {
		for _, a := range j.Actions() {
			fmt.Printf("  %s/%s: %s [%g, %g] on %s\n",
				j.Name(), a.Name(), a.State(), a.StartDate(), a.EndDate(), attemptHost(a))
		}
	}
	return nil
}

func attemptHost(a *job.Action) string {
	attempts := a.Attempts()
	if len(attempts) == 0 {
		return "-"
	}
	return attempts[len(attempts)-1].Host
}

func placementByName(name string) (compute.Placement, error) {
	switch name {
	case "first-fit":
		return compute.FirstFit, nil
	case "best-fit":
		return compute.BestFit, nil
	case "round-robin":
		return compute.RoundRobin(), nil
	}
	return nil, failure.NewInvalidArgument("unknown placement policy %q", name)
}
