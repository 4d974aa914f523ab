package remotessh

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// SGE implements Adapter for Sun Grid Engine, grounded on
// original_source/molequeue/queues/sge.cpp.
type SGE struct{}

var sgeQueueIDPattern = regexp.MustCompile(`(?i)^your job (\d+)`)

func (SGE) TypeName() string { return "Sun Grid Engine" }

// ParseQueueID matches "your job <id> (...) has been submitted" (case
// insensitive on "your"/"Your"), per spec §4.8.
func (SGE) ParseQueueID(submissionOutput string) (jobs.ID, bool) {
	m := sgeQueueIDPattern.FindStringSubmatch(strings.TrimSpace(submissionOutput))
	if m == nil {
		return jobs.InvalidID, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return jobs.InvalidID, false
	}
	return jobs.ID(n), true
}

// ParseQueueLine expects qstat output "jobId prior name user state
// submit/start ...", per spec §4.8.
func (SGE) ParseQueueLine(line string) (jobs.ID, jobs.State, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return jobs.InvalidID, jobs.Unknown, false
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return jobs.InvalidID, jobs.Unknown, false
	}

	switch strings.ToLower(fields[4]) {
	case "r", "d", "e":
		return jobs.ID(n), jobs.RunningRemote, true
	case "qw", "q", "w", "s", "h", "t":
		return jobs.ID(n), jobs.RemoteQueued, true
	default:
		return jobs.InvalidID, jobs.Unknown, false
	}
}

// AllowedExitCodes: SGE's qstat has no documented non-zero "job finished"
// exit code analogous to PBS's 153/35, per spec §4.7 ("PBS-family
// adapters additionally accept...").
func (SGE) AllowedExitCodes() []int { return nil }

// RequestQueueArgs polls by username rather than by job id, per spec
// §4.8 ("SGE polls with <requestQueueCommand> -u <userName>").
func (SGE) RequestQueueArgs(_, userName string, _ []jobs.ID) []string {
	return []string{"-u", userName}
}
