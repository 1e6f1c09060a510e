// Package scaling runs strong- and weak-scaling sweeps of a parallel program
// and reports how its wall time changes with the number of MPI ranks or
// OpenMP threads.
//
// A sweep launches the program once per worker count through an mpiexec
// command, with OMP_NUM_THREADS set for each run, and times each launch.
// The timings of one sweep are grouped under a tag
//
//	<mode>-<fixed>-<size>
//
// where fixed is the worker count that does not vary (threads in mpi mode,
// ranks in openmp mode) and size is the base problem size. Tags are kept in
// a SQLite database; re-running a tag replaces its timings.
package scaling
