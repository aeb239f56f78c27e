/*
Package log provides structured logging for Meridian simulations.

It wraps rs/zerolog behind a small initialization surface and a set of
child-logger helpers carrying the fields used throughout the simulator
(component, service, actor, job, action, host). Components hold a child
logger obtained once at construction:

	logger := log.WithComponent("compute-service")
	logger.Info().Str("job", job.Name()).Msg("Job submitted")

Call Init exactly once before creating a simulation. Console output is the
default; JSON output is available for machine consumption:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

Log timestamps are wall-clock. Virtual time is not a logging concern; code
that wants it in a line adds it explicitly with Float64("vt", k.Now()).
*/
package log
