package remotessh

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// PBS implements Adapter for PBS/Torque, grounded on
// original_source/molequeue/queues/pbs.cpp.
type PBS struct{}

var pbsQueueIDPattern = regexp.MustCompile(`^(\d+)`)

func (PBS) TypeName() string { return "PBS/Torque" }

// ParseQueueID reads the leading integer of the submission output (before
// the first '.') as the queue id, per spec §4.8.
func (PBS) ParseQueueID(submissionOutput string) (jobs.ID, bool) {
	m := pbsQueueIDPattern.FindStringSubmatch(strings.TrimSpace(submissionOutput))
	if m == nil {
		return jobs.InvalidID, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return jobs.InvalidID, false
	}
	return jobs.ID(n), true
}

// ParseQueueLine expects qstat output "jobId name user time state queue",
// per spec §4.8.
func (PBS) ParseQueueLine(line string) (jobs.ID, jobs.State, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return jobs.InvalidID, jobs.Unknown, false
	}
	idDigits := leadingDigits(fields[0])
	if idDigits == "" {
		return jobs.InvalidID, jobs.Unknown, false
	}
	n, err := strconv.ParseUint(idDigits, 10, 64)
	if err != nil {
		return jobs.InvalidID, jobs.Unknown, false
	}

	switch strings.ToLower(fields[4]) {
	case "r", "e", "c":
		return jobs.ID(n), jobs.RunningRemote, true
	case "q", "h", "t", "w", "s":
		return jobs.ID(n), jobs.RemoteQueued, true
	default:
		return jobs.InvalidID, jobs.Unknown, false
	}
}

// AllowedExitCodes accepts 153 (job completed) and 35 (ezHPC variant), in
// addition to the universal 0, per spec §4.7.
func (PBS) AllowedExitCodes() []int { return []int{153, 35} }

func (PBS) RequestQueueArgs(requestQueueCommand, _ string, _ []jobs.ID) []string {
	return nil
}

// leadingDigits returns the leading run of ASCII digits in s, stopping at
// the first non-digit (e.g. "4807" from "4807.cluster-host").
func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
