/*
Package events distributes simulation events.

The broker has two delivery paths with different guarantees:

  - Synchronous handlers, registered with RegisterHandler, run on the
    publishing goroutine in registration order and see the exact event
    sequence of the run. The trace recorder uses this path; it is the one
    determinism applies to.
  - Channel subscribers, obtained with Subscribe, are served by a
    tomb-managed fan-out goroutine with per-subscriber buffering and
    drop-on-full semantics. CLI progress displays use this path.

Events are stamped with the virtual time they occurred at and carry the
job, action, service and host names involved.
*/
package events
