package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/clock"
	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
	"github.com/molequeue-io/molequeue/internal/runner"
)

func newTestQueue(t *testing.T, maxCores int) (*Queue, *jobs.Manager, *runner.Fake, *clock.Fake) {
	t.Helper()
	manager := jobs.NewManager(zap.NewNop())
	fakeRunner := runner.NewFake()
	fakeClock := clock.NewFake()
	q := New(Config{
		Name:     "local",
		MaxCores: maxCores,
		Programs: []program.Program{
			{Name: "sleep", Executable: "sleep", Arguments: "2", Syntax: program.Plain},
		},
	}, manager, fakeRunner, fakeClock, zap.NewNop())
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q, manager, fakeRunner, fakeClock
}

// Spec §8 scenario 1: local sleep job transitions None -> Accepted ->
// LocalQueued -> RunningLocal -> Finished.
func TestLocalSleepJobHappyPath(t *testing.T) {
	q, manager, fakeRunner, fakeClock := newTestQueue(t, 8)

	var seen []jobs.State
	manager.Subscribe(stateRecorder(&seen))

	id, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.Update(id, func(d *jobs.Data) {
		d.Queue = "local"
		d.Program = "sleep"
		d.LocalWorkingDirectory = t.TempDir()
	}))

	fakeRunner.Enqueue(runner.Result{ExitCode: 0})
	require.NoError(t, q.Submit(context.Background(), id))

	fakeClock.Advance(5 * time.Second)
	require.Eventually(t, func() bool {
		d, _ := manager.Lookup(id)
		return d.State == jobs.Finished
	}, time.Second, time.Millisecond)

	assert.Equal(t, []jobs.State{jobs.Accepted, jobs.LocalQueued, jobs.RunningLocal, jobs.Finished}, seen)
}

// Spec §8 scenario 2, cancellation half: with maxCores=1, A and B are both
// LocalQueued after Submit (the clock is never advanced, so neither job is
// launched), and cancelling B moves it LocalQueued -> Canceled without it
// ever reaching RunningLocal.
func TestCancelPendingLocalJob(t *testing.T) {
	q, manager, fakeRunner, _ := newTestQueue(t, 1)

	idA, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.Update(idA, func(d *jobs.Data) {
		d.Queue, d.Program, d.LocalWorkingDirectory = "local", "sleep", t.TempDir()
	}))
	idB, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.Update(idB, func(d *jobs.Data) {
		d.Queue, d.Program, d.LocalWorkingDirectory = "local", "sleep", t.TempDir()
	}))

	// Result for A's launch; never consumed, since no tick launches A here.
	fakeRunner.Enqueue(runner.Result{})
	require.NoError(t, q.Submit(context.Background(), idA))
	require.NoError(t, q.Submit(context.Background(), idB))

	dA, _ := manager.Lookup(idA)
	dB, _ := manager.Lookup(idB)
	assert.Equal(t, jobs.LocalQueued, dA.State)
	assert.Equal(t, jobs.LocalQueued, dB.State)

	require.NoError(t, q.Kill(context.Background(), idB))
	dB, _ = manager.Lookup(idB)
	assert.Equal(t, jobs.Canceled, dB.State)
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
