/*
Package mpi is the side-channel runtime backing MPI actions. Each process
of the action runs as a logical actor with a rank; Init, Barrier, Alltoall
and Finalize are blocking collectives over per-rank commports. The
communicator lives for one action execution and is torn down by the
executor's kill path.
*/
package mpi
