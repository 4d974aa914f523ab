package remotessh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/clock"
	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
	"github.com/molequeue-io/molequeue/internal/runner"
)

// Queue is the QueueRemoteSSH strategy (spec component I).
type Queue struct {
	cfg      Config
	name     string
	programs []program.Program

	manager *jobs.Manager
	run     runner.Runner
	clk     clock.Clock
	logger  *zap.Logger

	mu         sync.Mutex
	pending    []jobs.ID       // pendingSubmission FIFO
	submitting map[jobs.ID]bool // claimed by beginJobSubmission, not yet Submitted
	byQueueID  map[jobs.ID]jobs.ID // scheduler queueId -> moleQueueId
	failures   map[jobs.ID]int
	checking   bool // isCheckingQueue guard: at most one in-flight poll

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New returns a ready-to-Start remote SSH Queue.
func New(cfg Config, name string, programs []program.Program, manager *jobs.Manager, run runner.Runner, clk clock.Clock, logger *zap.Logger) *Queue {
	return &Queue{
		cfg: cfg, name: name, programs: programs,
		manager: manager, run: run, clk: clk, logger: logger,
		submitting: make(map[jobs.ID]bool),
		byQueueID:  make(map[jobs.ID]jobs.ID),
		failures:   make(map[jobs.ID]int),
	}
}

func (q *Queue) Name() string                { return q.name }
func (q *Queue) TypeName() string            { return q.cfg.Adapter.TypeName() }
func (q *Queue) Programs() []program.Program { return q.programs }

func (q *Queue) lookupProgram(name string) (program.Program, bool) {
	for _, p := range q.programs {
		if p.Name == name {
			return p, true
		}
	}
	return program.Program{}, false
}

// Submit validates the job's Program and enqueues it in pendingSubmission;
// the submission pipeline itself runs asynchronously off the 5s tick
// (spec §4.7).
func (q *Queue) Submit(ctx context.Context, id jobs.ID) error {
	data, ok := q.manager.Lookup(id)
	if !ok {
		return jobs.ErrNotFound
	}
	if _, ok := q.lookupProgram(data.Program); !ok {
		_ = q.manager.SetState(id, jobs.Accepted)
		_ = q.manager.SetState(id, jobs.Error)
		return fmt.Errorf("remotessh queue %q: unknown program %q", q.name, data.Program)
	}
	if err := q.manager.SetState(id, jobs.Accepted); err != nil {
		return err
	}

	if err := q.stageInputFiles(data); err != nil {
		q.logger.Warn("remotessh: failed to stage job, marking Error", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		_ = q.manager.SetState(id, jobs.Error)
		return err
	}

	q.mu.Lock()
	q.pending = append(q.pending, id)
	q.mu.Unlock()
	return nil
}

// Kill issues killCommand <queueId> over SSH and marks the job Canceled
// (spec §4.7, §5 cancellation semantics).
func (q *Queue) Kill(ctx context.Context, id jobs.ID) error {
	data, ok := q.manager.Lookup(id)
	if !ok {
		return jobs.ErrNotFound
	}

	q.mu.Lock()
	for i, pending := range q.pending {
		if pending == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if data.QueueID.IsValid() {
		cmd := fmt.Sprintf("%s %d", q.cfg.KillCommand, uint64(data.QueueID))
		if _, err := q.runSSH(ctx, cmd); err != nil {
			q.logger.Warn("remotessh: kill command failed", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		}
	}
	return q.manager.SetState(id, jobs.Canceled)
}

// Start begins the two independent tick loops: the 5s pending-submission
// drain, and the queueUpdateInterval scheduler poll (spec §4.7, §5).
func (q *Queue) Start(ctx context.Context) {
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	submitTicker := q.clk.NewTicker(submitTickPeriod)
	pollTicker := q.clk.NewTicker(q.cfg.queueUpdateInterval())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer submitTicker.Stop()
		for {
			select {
			case <-submitTicker.C():
				q.submitPendingJobs(ctx)
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		defer pollTicker.Stop()
		for {
			select {
			case <-pollTicker.C():
				q.requestQueueUpdate(ctx)
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(q.doneCh)
	}()
}

// Stop ends both tick loops and waits for them to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		if q.stopCh != nil {
			close(q.stopCh)
			<-q.doneCh
		}
	})
}

// submitPendingJobs claims every id still waiting in pendingSubmission and
// runs its submission pipeline concurrently (spec §4.7: "Per-job SSH
// operations may proceed concurrently across jobs but are serialized per
// job"), using the supplemented "separate pendingSubmission FIFO distinct
// from the currently-submitting set" so overlapping ticks never claim the
// same job twice.
func (q *Queue) submitPendingJobs(ctx context.Context) {
	q.mu.Lock()
	claimed := q.pending
	q.pending = nil
	for _, id := range claimed {
		q.submitting[id] = true
	}
	q.mu.Unlock()

	for _, id := range claimed {
		go q.beginJobSubmission(ctx, id)
	}
}

func (q *Queue) requeue(id jobs.ID) {
	q.mu.Lock()
	delete(q.submitting, id)
	q.failures[id]++
	exceeded := q.failures[id] > q.cfg.maxSubmissionRetries()
	if !exceeded {
		q.pending = append(q.pending, id)
	}
	q.mu.Unlock()

	if exceeded {
		q.logger.Warn("remotessh: submission retry cap exceeded, marking Error", zap.Uint64("moleQueueId", uint64(id)))
		_ = q.manager.SetState(id, jobs.Error)
	}
}

func (q *Queue) remoteJobDir(id jobs.ID) string {
	return strings.TrimRight(q.cfg.WorkingDirectoryBase, "/") + "/" + uintString(id)
}

// beginJobSubmission runs the stage -> submit leg of the pipeline for one
// job: write the local launch script, mkdir the remote directory, scp the
// staged local directory across, then submit it, per spec §4.7.
func (q *Queue) beginJobSubmission(ctx context.Context, id jobs.ID) {
	data, ok := q.manager.Lookup(id)
	if !ok {
		q.mu.Lock()
		delete(q.submitting, id)
		q.mu.Unlock()
		return
	}
	p, _ := q.lookupProgram(data.Program)

	if err := q.writeLaunchScript(data, p); err != nil {
		q.logger.Warn("remotessh: failed to write launch script", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		q.requeue(id)
		return
	}

	remoteDir := q.remoteJobDir(id)
	if _, err := q.runSSH(ctx, "mkdir -p "+q.cfg.WorkingDirectoryBase); err != nil {
		q.logger.Warn("remotessh: createRemoteDirectory failed", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		q.requeue(id)
		return
	}

	if _, err := q.runSCP(ctx, data.LocalWorkingDirectory, remoteDir, true); err != nil {
		q.logger.Warn("remotessh: copyInputFilesToHost failed", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		q.requeue(id)
		return
	}

	submitCmd := fmt.Sprintf("cd %s && %s %s", remoteDir, q.cfg.SubmissionCommand, q.cfg.LaunchScriptName)
	result, err := q.runSSH(ctx, submitCmd)
	if err != nil || result.ExitCode != 0 {
		q.logger.Warn("remotessh: submitJobToRemoteQueue failed", zap.Uint64("moleQueueId", uint64(id)), zap.Int("exitCode", result.ExitCode), zap.Error(err))
		q.requeue(id)
		return
	}

	queueID, ok := q.cfg.Adapter.ParseQueueID(string(result.Stdout))
	if !ok {
		q.logger.Warn("remotessh: could not parse queue id from submission output", zap.Uint64("moleQueueId", uint64(id)), zap.ByteString("stdout", result.Stdout))
		q.requeue(id)
		return
	}

	q.mu.Lock()
	delete(q.submitting, id)
	delete(q.failures, id)
	q.byQueueID[queueID] = id
	q.mu.Unlock()

	if err := q.manager.SetQueueID(id, queueID); err != nil {
		q.logger.Warn("remotessh: failed to record queue id", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
	}
	_ = q.manager.SetState(id, jobs.Submitted)
}

// writeLaunchScript resolves the queue's launch template (spec §4.4) and
// writes it into the job's local staged directory, alongside its already-
// written input files.
func (q *Queue) writeLaunchScript(data jobs.Data, p program.Program) error {
	kw := q.keywords(data, p)
	script := program.Expand(q.cfg.LaunchTemplate, p, kw)
	dest := filepath.Join(data.LocalWorkingDirectory, q.cfg.LaunchScriptName)
	if err := os.WriteFile(dest, []byte(script), 0o644); err != nil {
		return fmt.Errorf("remotessh: write launch script: %w", err)
	}
	return os.Chmod(dest, 0o755)
}

func (q *Queue) keywords(data jobs.Data, p program.Program) program.Keywords {
	maxWallTime := data.MaxWallTime
	if maxWallTime <= 0 {
		maxWallTime = q.cfg.defaultMaxWallTime()
	}
	inputName := data.InputFile.Filename()
	inputBase := data.InputFile.FileBaseName()
	outputName := p.OutputFilenameTemplate
	if outputName == "" {
		outputName = p.Name + ".out"
	}

	kw := program.BaseKeywords(int64(data.MoleQueueID), int64(data.NumberOfCores), int64(maxWallTime), inputName, inputBase, outputName)
	kw["remoteWorkingDir"] = q.remoteJobDir(data.MoleQueueID)
	for k, v := range data.Keywords {
		kw[k] = v
	}
	return kw
}

func uintString(id jobs.ID) string {
	return fmt.Sprintf("%d", uint64(id))
}
