/*
Package compute implements the bare-metal compute service.

The service accepts compound jobs, keeps a live (free_cores, free_ram) view
of every managed host, and on each scheduling opportunity walks pending
jobs in submission order and their ready actions in name order, placing
each on a host chosen by the configured placement policy (first-fit by
default; best-fit and round-robin ship too). Counters are debited before
an executor starts and re-credited exactly once when it reports back, so
cores and RAM are never oversubscribed.

	┌──────────────────────────────────────────────────────┐
	│                 Service event loop                   │
	│        (single receive port, arrival order)          │
	└───────────────┬──────────────────────────────────────┘
	                │ submit / terminate / executor-done /
	                │ host-state-change / resource-info / stop
	                ▼
	┌──────────────────────────────────────────────────────┐
	│  handler mutates job + host state                    │
	│  then tryDispatchReadyActions()                      │
	└──────────────────────────────────────────────────────┘

Failure semantics: a failed action fails its transitive dependents with a
cascade cause; the job's single failure notification carries the first
non-cascade cause. A host turning off fails every action running there
with HostError and releases their allocations. Graceful stop drains
running executors, discontinues half-done jobs and exits; brutal stop
kills everything with the supplied cause and notifies each affected
submitter.

Service-specific args recognized at submission: "<action-name>" requests
cores ("3" or "HostB:2") and "-t" sets a per-action timeout in seconds.
Unknown keys are rejected with InvalidArgument.
*/
package compute
