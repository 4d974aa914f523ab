package remotessh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/clock"
	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
	"github.com/molequeue-io/molequeue/internal/runner"
)

// Spec §8 scenario 4: remote job happy path with a mocked SSH driver.
// Ordered SSH commands: mkdir -p <base> -> scp -r <local> <base>/<id> ->
// cd <base>/<id> && qsub job.pbs, followed by polls where qstat reports
// the job queued, then running, then no longer lists it, which triggers
// the scp back and finalization.
func TestRemoteJobHappyPath(t *testing.T) {
	manager := jobs.NewManager(zap.NewNop())
	fakeRunner := runner.NewFake()
	fakeClock := clock.NewFake()

	cfg := Config{
		Adapter:              PBS{},
		HostName:             "cluster.example.com",
		UserName:             "chemist",
		WorkingDirectoryBase: "/home/chemist/mqueue",
		SubmissionCommand:    "qsub",
		KillCommand:          "qdel",
		RequestQueueCommand:  "qstat",
		LaunchScriptName:     "job.pbs",
		LaunchTemplate:       "#!/bin/sh\n$$programExecution$$\n",
	}
	q := New(cfg, "cluster", []program.Program{
		{Name: "Quantum Tater", Executable: "tater", Syntax: program.Plain},
	}, manager, fakeRunner, fakeClock, zap.NewNop())

	var seen []jobs.State
	manager.Subscribe(stateRecorder(&seen))

	id, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.Update(id, func(d *jobs.Data) {
		d.Queue = "cluster"
		d.Program = "Quantum Tater"
		d.LocalWorkingDirectory = t.TempDir()
		d.RetrieveOutput = true
	}))

	// mkdir, scp-to, qsub
	fakeRunner.Enqueue(runner.Result{ExitCode: 0})
	fakeRunner.Enqueue(runner.Result{ExitCode: 0})
	fakeRunner.Enqueue(runner.Result{ExitCode: 0, Stdout: []byte("1234.not.a.real.host\n")})

	require.NoError(t, q.Submit(context.Background(), id))
	q.beginJobSubmission(context.Background(), id)

	data, _ := manager.Lookup(id)
	assert.Equal(t, jobs.Submitted, data.State)
	assert.Equal(t, jobs.ID(1234), data.QueueID)

	invocations := fakeRunner.Invocations()
	require.Len(t, invocations, 3)
	assert.Equal(t, "ssh", invocations[0].Spec.Command)
	assert.Contains(t, invocations[0].Spec.Args, "mkdir -p /home/chemist/mqueue")
	assert.Equal(t, "scp", invocations[1].Spec.Command)
	assert.Equal(t, "ssh", invocations[2].Spec.Command)
	assert.Contains(t, invocations[2].Spec.Args, "cd /home/chemist/mqueue/1 && qsub job.pbs")

	// First poll: qstat reports the job still queued.
	fakeRunner.Enqueue(runner.Result{ExitCode: 0, Stdout: []byte("1234.host name user 00:01:00 q batch\n")})
	q.requestQueueUpdate(context.Background())

	data, _ = manager.Lookup(id)
	assert.Equal(t, jobs.RemoteQueued, data.State)

	// Second poll: qstat reports the job running ("C" token maps to
	// RunningRemote per the PBS adapter's literal state-token table).
	fakeRunner.Enqueue(runner.Result{ExitCode: 0, Stdout: []byte("1234.host name user 00:01:00 C batch\n")})
	q.requestQueueUpdate(context.Background())

	data, _ = manager.Lookup(id)
	assert.Equal(t, jobs.RunningRemote, data.State)

	// Third poll: job has vanished from the listing -> finalize ->
	// scp back, then Finished.
	fakeRunner.Enqueue(runner.Result{ExitCode: 0, Stdout: []byte("")})
	fakeRunner.Enqueue(runner.Result{ExitCode: 0}) // scp back
	q.requestQueueUpdate(context.Background())

	data, _ = manager.Lookup(id)
	assert.Equal(t, jobs.Finished, data.State)

	assert.Equal(t, []jobs.State{jobs.Accepted, jobs.Submitted, jobs.RemoteQueued, jobs.RunningRemote, jobs.Finished}, seen)
}

type stateRecorderObserver struct {
	jobs.NopObserver
	seen *[]jobs.State
}

func (o stateRecorderObserver) JobStateChanged(_ jobs.ID, _, new jobs.State) {
	*o.seen = append(*o.seen, new)
}

func stateRecorder(seen *[]jobs.State) jobs.Observer {
	return stateRecorderObserver{seen: seen}
}
