// Package remotessh implements QueueRemoteSSH: a Queue strategy that stages
// files, submits via SSH, polls a remote batch scheduler, retrieves
// output, and cleans up, over an SSH/SCP connection (spec §4.7), plus the
// PBS/Torque and Sun Grid Engine adapters that speak each scheduler's
// submission and queue-status output (spec §4.8).
package remotessh

import "github.com/molequeue-io/molequeue/internal/jobs"

// Adapter captures the scheduler-specific parts of the pipeline: how to
// read a scheduler id back out of a submission command's stdout, how to
// parse one row of a queue-status listing, which non-zero exit codes the
// queue-status command is still allowed to return, and how to build the
// queue-status command's arguments (spec §4.8).
type Adapter interface {
	// TypeName identifies the concrete scheduler ("PBS/Torque", "Sun Grid
	// Engine"), per spec §4.9.
	TypeName() string

	// ParseQueueID extracts the scheduler-assigned queue id from a
	// submission command's stdout.
	ParseQueueID(submissionOutput string) (jobs.ID, bool)

	// ParseQueueLine extracts the scheduler queue id and mapped JobState
	// from one row of a queue-status listing. ok is false for a row whose
	// state token is unrecognized (the caller logs a warning and skips
	// the row, per spec §4.8).
	ParseQueueLine(line string) (queueID jobs.ID, state jobs.State, ok bool)

	// AllowedExitCodes lists non-zero exit codes the queue-status command
	// may return without the poll being treated as failed (spec §4.7's
	// "Allowed non-zero queue-request exit codes").
	AllowedExitCodes() []int

	// RequestQueueArgs builds the arguments appended to
	// requestQueueCommand for one poll, given the scheduler ids currently
	// tracked by this queue and the configured username (SGE polls by
	// user rather than by id, per spec §4.8).
	RequestQueueArgs(requestQueueCommand, userName string, trackedIDs []jobs.ID) []string
}
