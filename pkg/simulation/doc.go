/*
Package simulation is the top-level façade: it owns the kernel, the event
broker, the optional trace recorder and the process-wide data file
registry, and it wires services and controllers into a runnable whole.

	p, _ := platform.Load("platform.yaml")
	sim, _ := simulation.New(p, simulation.WithSeed(42))
	host, _ := sim.HostByName("HostA")
	svc := compute.New("bare-metal", host, nil, compute.WithBroker(sim.Broker()))
	sim.AddService(svc)
	sim.CreateController(host, "controller", func(c *simulation.Controller) error {
		jm, _ := jobmanager.New(c.Kernel(), c.Actor())
		// build, submit, wait
		return nil
	})
	sim.Launch()
	sim.Terminate()

Launch blocks until the event horizon: no events left means every daemon
is parked and the workload is finished. Terminate flushes the trace and
clears the global registries so a fresh simulation can be built.
*/
package simulation
