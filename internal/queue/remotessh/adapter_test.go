package remotessh

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// Spec §8 "Parser round-trips".
func TestPBSParseQueueLine(t *testing.T) {
	id, state, ok := PBS{}.ParseQueueLine("231.host  scatter  user01  12:56:34 R batch")
	assert.True(t, ok)
	assert.Equal(t, jobs.ID(231), id)
	assert.Equal(t, jobs.RunningRemote, state)

	cases := map[string]jobs.State{
		"1 n u t q batch": jobs.RemoteQueued,
		"1 n u t h batch": jobs.RemoteQueued,
		"1 n u t t batch": jobs.RemoteQueued,
		"1 n u t w batch": jobs.RemoteQueued,
		"1 n u t s batch": jobs.RemoteQueued,
		"1 n u t e batch": jobs.RunningRemote,
		"1 n u t c batch": jobs.RunningRemote,
	}
	for line, want := range cases {
		_, state, ok := PBS{}.ParseQueueLine(line)
		assert.True(t, ok, line)
		assert.Equal(t, want, state, line)
	}

	_, _, ok = PBS{}.ParseQueueLine("1 n u t z batch")
	assert.False(t, ok)
}

func TestPBSParseQueueID(t *testing.T) {
	id, ok := PBS{}.ParseQueueID("1234.not.a.real.host")
	assert.True(t, ok)
	assert.Equal(t, jobs.ID(1234), id)
}

func TestSGEParseQueueLine(t *testing.T) {
	id, state, ok := SGE{}.ParseQueueLine("231 0 hydra craig r 07/13/96 durin.q MASTER")
	assert.True(t, ok)
	assert.Equal(t, jobs.ID(231), id)
	assert.Equal(t, jobs.RunningRemote, state)

	_, state, ok = SGE{}.ParseQueueLine("236 5 word elaine qw 07/13/96")
	assert.True(t, ok)
	assert.Equal(t, jobs.RemoteQueued, state)
}

func TestSGEParseQueueID(t *testing.T) {
	id, ok := SGE{}.ParseQueueID("your job 1235 ('someFile') has been submitted")
	assert.True(t, ok)
	assert.Equal(t, jobs.ID(1235), id)
}

func TestPBSAllowedExitCodes(t *testing.T) {
	assert.Contains(t, PBS{}.AllowedExitCodes(), 153)
	assert.Contains(t, PBS{}.AllowedExitCodes(), 35)
}

func TestSGERequestQueueArgsUsesUsername(t *testing.T) {
	args := SGE{}.RequestQueueArgs("qstat", "craig", nil)
	assert.Equal(t, []string{"-u", "craig"}, args)
}
