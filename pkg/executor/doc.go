/*
Package executor runs one action to a terminal state.

An executor holds an allocation (host, cores, ram) and a reply port. It
verifies the allocation against the action's requirements, records the
execution attempt, drives the variant's behavior — compute simulation, a
sleep, the storage or registry protocol, user code, or the MPI runtime —
and reports a Done message to the reply port exactly once.

An optional timeout races the execution against a kernel watchdog; if the
watchdog wins, the action fails with OperationTimeout. An external Kill
runs the action's terminate hook and lands the action in KILLED with the
supplied cause. Executors are short-lived: one action, then gone.
*/
package executor
