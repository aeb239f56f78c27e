/*
Package service provides the daemon backbone simulated services embed: an
actor pinned to a host, a request commport named after the service, the
up/down flag, and the graceful/brutal stop protocol.

A concrete service embeds Base, starts its event loop with Start, and
processes messages from Port in arrival order. Serializing everything
through the single receive port is what makes services race-free without
locks.

	type Echo struct{ *service.Base }

	func (e *Echo) Run(k *kernel.Kernel) error {
		return e.Start(k, func() error {
			for {
				msg, err := e.Port().Get(-1)
				if err != nil {
					return nil // killed or simulation ended
				}
				switch m := msg.(type) {
				case *service.StopRequest:
					e.SetUp(false)
					e.Actor().DPut(m.ReplyPort, &service.DaemonStopped{Service: e.Name()})
					return nil
				}
			}
		})
	}
*/
package service
