/*
Package platform parses and validates the declarative platform description a
simulation runs against.

A platform enumerates hosts (flop rate per core, core count, RAM, optional
disks), links (bandwidth, latency) and symmetric routes between hosts:

	hosts:
	  - name: HostA
	    speed: 1Gf
	    cores: 4
	    ram: 16GB
	links:
	  - name: backbone
	    bandwidth: 125MBps
	    latency: 100us
	routes:
	  - src: HostA
	    dst: HostB
	    links: [backbone]

Host and link names are unique; violations are InvalidArgument. Declaration
order of hosts is preserved and is the stable iteration order used by every
scheduler in the simulator.

Message cost between distinct hosts is latency plus bytes over the
bottleneck bandwidth of the route. Same-host communication is free. Two
distinct hosts without a declared route cannot communicate.
*/
package platform
