/*
Package trace persists the results of a run — the deterministic event
sequence plus terminal job and action states — into a bolt file with JSON
values, one bucket each for events, jobs and actions. A trace describes
what a finished run did; the simulator never reads one back.
*/
package trace
