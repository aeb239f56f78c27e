/*
Package job is the compound job and action model: immutable-shape DAGs of
actions, their state machines, parallel-speedup models, data files and file
locations.

A compound job owns its actions exclusively; actions point back at their job.
Dependencies may only be added while the job is NOT_SUBMITTED, and an edge
that would close a cycle fails with CyclicDependency, leaving the DAG
untouched:

	j, _ := job.NewCompoundJob("pipeline")
	a, _ := j.AddComputeAction("stage-a", 100, 0, 1, 4, model)
	b, _ := j.AddComputeAction("stage-b", 50, 0, 1, 1, model)
	_ = j.AddActionDependency(a, b)

An action is READY exactly when every predecessor is COMPLETED; ready sets
are returned sorted by name so dispatch order is deterministic.

The package holds no execution logic. Executors drive the variant payloads
through the ExecutionEnv interface, and services mutate states through
NewAttempt/Complete/Fail/MarkKilled, which enforce terminal stickiness.
*/
package job
