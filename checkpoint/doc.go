// Package checkpoint persists run snapshots so a paused or crashed run can
// resume later, possibly from another process. The Store contract is
// at-least-once durable: a Save that returned success must stay loadable by
// any subsequent Load, including after a restart.
//
// Retention (MaxPerRun) is enforced by each store implementation, not by the
// runner: when a run accumulates more checkpoints than the limit, the oldest
// ones are evicted on Save.
package checkpoint
