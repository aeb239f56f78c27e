/*
Package failure defines the failure-cause taxonomy of the simulator.

Every failure surfaced to user code is one of the concrete Cause types
defined here: InvalidArgument, NotEnoughResources, HostError, NetworkError,
ServiceDown, FileNotFound, StorageFull, OperationTimeout,
JobTypeNotSupported, ComputeThreadDied, FatalFailure, JobKilled, plus the
internal cascade cause ParentFailed.

Causes are plain error values; classify them with errors.As:

	var he *failure.HostError
	if errors.As(action.FailureCause(), &he) {
		// the host running the action went down
	}

InvalidArgument is raised synchronously for programmer errors and never
mutates state. Everything else is a runtime failure carried on actions,
answers, and events.
*/
package failure
