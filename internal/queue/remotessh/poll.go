package remotessh

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// requestQueueUpdate polls the remote scheduler once, guarded by the
// isCheckingQueue flag so at most one poll is ever in flight per queue
// (spec §4.7). Jobs present in our index but absent from the listing are
// inferred Finished and handed to beginFinalizeJob.
func (q *Queue) requestQueueUpdate(ctx context.Context) {
	q.mu.Lock()
	if q.checking {
		q.mu.Unlock()
		return
	}
	if len(q.byQueueID) == 0 {
		q.mu.Unlock()
		return
	}
	q.checking = true
	tracked := make([]jobs.ID, 0, len(q.byQueueID))
	for queueID := range q.byQueueID {
		tracked = append(tracked, queueID)
	}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.checking = false
		q.mu.Unlock()
	}()

	args := q.cfg.Adapter.RequestQueueArgs(q.cfg.RequestQueueCommand, q.cfg.UserName, tracked)
	cmd := q.cfg.RequestQueueCommand
	if len(args) > 0 {
		cmd = cmd + " " + strings.Join(args, " ")
	}

	result, err := q.runSSH(ctx, cmd)
	if err != nil {
		q.logger.Warn("remotessh: queue-status poll failed", zap.Error(err))
		return
	}
	if !q.exitCodeAllowed(result.ExitCode) {
		q.logger.Warn("remotessh: queue-status command exited non-zero", zap.Int("exitCode", result.ExitCode))
		return
	}

	seen := make(map[jobs.ID]bool)
	for _, line := range strings.Split(string(result.Stdout), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		queueID, state, ok := q.cfg.Adapter.ParseQueueLine(line)
		if !ok {
			q.logger.Warn("remotessh: unrecognized queue-status line", zap.String("line", line))
			continue
		}
		q.mu.Lock()
		id, tracked := q.byQueueID[queueID]
		q.mu.Unlock()
		if !tracked {
			continue
		}
		seen[queueID] = true
		if err := q.manager.SetState(id, state); err != nil && err != jobs.ErrIllegalTransition {
			q.logger.Warn("remotessh: failed to record polled state", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		}
	}

	q.mu.Lock()
	var vanished []jobs.ID
	for queueID := range q.byQueueID {
		if !seen[queueID] {
			vanished = append(vanished, queueID)
		}
	}
	q.mu.Unlock()

	for _, queueID := range vanished {
		q.beginFinalizeJob(ctx, queueID)
	}
}

func (q *Queue) exitCodeAllowed(code int) bool {
	if code == 0 {
		return true
	}
	for _, allowed := range q.cfg.Adapter.AllowedExitCodes() {
		if code == allowed {
			return true
		}
	}
	return false
}

// beginFinalizeJob retrieves output (if requested), mirrors it to a custom
// destination (if configured), cleans up, and transitions the job to
// Finished — or to Error if output retrieval fails, per the spec's
// stricter Open-Question resolution (§9 Design Notes).
func (q *Queue) beginFinalizeJob(ctx context.Context, queueID jobs.ID) {
	q.mu.Lock()
	id, ok := q.byQueueID[queueID]
	if ok {
		delete(q.byQueueID, queueID)
	}
	q.mu.Unlock()
	if !ok {
		return
	}

	data, ok := q.manager.Lookup(id)
	if !ok {
		return
	}

	remoteDir := q.remoteJobDir(id)

	if data.RetrieveOutput {
		if _, err := q.runSCP(ctx, data.LocalWorkingDirectory, remoteDir, false); err != nil {
			q.logger.Warn("remotessh: finalizeJobCopyFromServer failed", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
			_ = q.manager.SetState(id, jobs.Error)
			return
		}
	}

	if data.OutputDirectory != "" && data.OutputDirectory != data.LocalWorkingDirectory {
		if err := copyDirectoryContents(data.LocalWorkingDirectory, data.OutputDirectory); err != nil {
			q.logger.Warn("remotessh: finalizeJobCopyToCustomDestination failed", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
			_ = q.manager.SetState(id, jobs.Error)
			return
		}
	}

	q.finalizeCleanup(ctx, id, data, remoteDir)

	_ = q.manager.SetState(id, jobs.Finished)
}

func (q *Queue) finalizeCleanup(ctx context.Context, id jobs.ID, data jobs.Data, remoteDir string) {
	if data.CleanLocalWorkingDirectory {
		if err := removeAll(data.LocalWorkingDirectory); err != nil {
			q.logger.Warn("remotessh: failed to clean local working directory", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		}
	}
	if data.CleanRemoteFiles {
		if _, err := q.runSSH(ctx, fmt.Sprintf("rm -rf %s", remoteDir)); err != nil {
			q.logger.Warn("remotessh: failed to clean remote directory", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		}
	}
}
