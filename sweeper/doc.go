// Package sweeper deletes expired checkpoints on a cron schedule.
//
// A suspended execution whose reviewer never answers keeps its checkpoint
// until SuspendedTTL passes; finished executions are kept for FinishedTTL
// so callers can still inspect them. Running checkpoints left behind by a
// crashed process are treated like suspended ones.
package sweeper
