// Promoter watches a primary database server from the standby side and
// promotes the standby when the primary is considered down.
//
// The monitor polls the primary with a trivial liveness query on a fixed
// interval. After a configured number of consecutive failures it writes a
// trigger file into the data directory and sends SIGUSR1 to the postmaster,
// which performs the actual promotion. The monitor then terminates, it does
// not keep running on the new primary.
//
// Promoter is a single-observer heuristic. It is not a consensus protocol
// and cannot prevent split brain, so the consecutive failure threshold is
// the only guard against transient network errors.
package promoter
