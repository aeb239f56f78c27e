/*
Package kernel is the discrete-event core of the simulator: the virtual
clock, the event heap, cooperatively scheduled actors, simulated hosts, and
commports.

# Scheduling model

The whole simulation is single-threaded at any wall-clock instant. Actors
are goroutines, but the kernel resumes exactly one at a time through a
channel handshake; an actor runs until it suspends in one of the blocking
operations — Put, Get, Wait, Sleep, Compute, Yield — and nothing else
yields. Any other code runs to completion between suspension points, so no
kernel or service state needs locking.

Events are ordered by (virtual time, sequence number). Two identical runs
pop events in an identical order, which is what makes whole simulations
byte-for-byte reproducible.

# Commports

A commport is a named receive queue owned by one actor:

	port, _ := k.NewCommport(self, "my-service")
	msg, err := port.Get(-1)          // blocking receive
	err = other.Put(port, req)        // blocking send, returns on consumption
	err = other.DPut(port, note)      // fire-and-forget
	pending, _ := other.IPut(port, m) // asynchronous, Wait/WaitAny later

Message cost between distinct hosts is the route latency plus payload bytes
over the bottleneck bandwidth; same-host messages are free. Delivery between
one sender/receiver pair is FIFO. A send to a dead actor or a powered-off
host fails with a NetworkError.

# Kill and host failures

Actor.Kill aborts the victim's pending blocking operation, which returns a
*KilledError carrying the cause; communications in flight at kill time are
aborted and their counterparties observe a NetworkError. Turning a host off
kills every actor pinned to it with a HostError and notifies registered
host-state watchers, which is how compute services learn to fail the
actions that were running there.
*/
package kernel
