package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSHRunnerDelegatesNonSSHCommandsToFallback(t *testing.T) {
	r := NewSSHRunner(SSHConfig{Host: "example.org", IdentityFile: "/nonexistent/key"})
	_, started, exited := r.Run(context.Background(), Spec{Command: "echo", Args: []string{"hi"}})
	<-started
	result := <-exited
	assert.NoError(t, result.Err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestSSHRunnerReportsDialFailureForSSHCommand(t *testing.T) {
	r := NewSSHRunner(SSHConfig{Host: "example.org", IdentityFile: "/nonexistent/key"})
	_, started, exited := r.Run(context.Background(), Spec{Command: "ssh", Args: []string{"user@example.org", "echo hi"}})
	<-started
	result := <-exited
	assert.Error(t, result.Err)
}

func TestSSHRunnerDefaultsExecutableName(t *testing.T) {
	r := NewSSHRunner(SSHConfig{Host: "example.org", IdentityFile: "/nonexistent/key"})
	assert.Equal(t, "ssh", r.cfg.SSHExecutableName)
}
