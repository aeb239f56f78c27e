/*
Package workload parses declarative workload documents — compound jobs of
compute and sleep actions with dependencies and service-specific args — and
materializes them through a job manager:

	jobs:
	  - name: pipeline
	    actions:
	      - name: stage-a
	        type: compute
	        flops: 100Gf
	        min_cores: 1
	        max_cores: 4
	        alpha: 0.9
	      - name: cooldown
	        type: sleep
	        duration: 5s
	    dependencies:
	      - parent: stage-a
	        child: cooldown
	    args:
	      stage-a: "4"

File, custom and MPI actions carry Go values (locations, closures) and are
built through the programmatic job API instead.
*/
package workload
