/*
Package jobmanager provides the per-controller job helper.

A job manager is the sole factory for compound jobs, the submission proxy
multiplexing jobs onto any number of compute services, and the translator
of raw service notifications into the events the controller consumes:

	jm, _ := jobmanager.New(k, controllerActor)
	j, _ := jm.CreateCompoundJob("pipeline")
	// ... build the DAG ...
	if err := jm.SubmitJob(j, svc, nil); err != nil { ... }
	ev, _ := jm.WaitForNextEvent(-1)
	switch e := ev.(type) {
	case *jobmanager.CompoundJobCompletedEvent: ...
	case *jobmanager.CompoundJobFailedEvent:    ...
	}

A job may only be submitted from NOT_SUBMITTED; success freezes its DAG and
moves it to PENDING. Forgetting a job that is still in flight is an error;
forgetting it twice is a no-op.
*/
package jobmanager
