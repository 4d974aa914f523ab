package remotessh

import (
	"context"
	"fmt"
	"strconv"

	"github.com/molequeue-io/molequeue/internal/runner"
)

// sshConnectionArgs builds the connection flags for scp invocations: port
// (scp's -P) and identity file. sshPortArgs builds the same flags with
// ssh's -p spelling.
func (q *Queue) sshConnectionArgs() []string {
	var args []string
	if q.cfg.SSHPort > 0 {
		args = append(args, "-P", strconv.Itoa(q.cfg.SSHPort))
	}
	if q.cfg.IdentityFile != "" {
		args = append(args, "-i", q.cfg.IdentityFile)
	}
	return args
}

func (q *Queue) sshPortArgs() []string {
	var args []string
	if q.cfg.SSHPort > 0 {
		args = append(args, "-p", strconv.Itoa(q.cfg.SSHPort))
	}
	if q.cfg.IdentityFile != "" {
		args = append(args, "-i", q.cfg.IdentityFile)
	}
	return args
}

func (q *Queue) userHost() string {
	if q.cfg.UserName != "" {
		return q.cfg.UserName + "@" + q.cfg.HostName
	}
	return q.cfg.HostName
}

// runSSH executes a single remote command over SSH, blocking until the
// short-lived subprocess exits (spec §4.7: "each SSH/SCP invocation is a
// separate short-lived process").
func (q *Queue) runSSH(ctx context.Context, remoteCommand string) (runner.Result, error) {
	args := append(q.sshPortArgs(), q.userHost(), remoteCommand)
	spec := runner.Spec{Command: q.cfg.sshExecutable(), Args: args}
	_, _, exited := q.run.Run(ctx, spec)
	result := <-exited
	if result.Err != nil {
		return result, fmt.Errorf("remotessh: ssh %q: %w", remoteCommand, result.Err)
	}
	return result, nil
}

// runSCP copies localPath to/from the remote host depending on direction;
// toRemote selects "local -> remote" (true) or "remote -> local" (false).
func (q *Queue) runSCP(ctx context.Context, localPath, remotePath string, toRemote bool) (runner.Result, error) {
	remoteArg := q.userHost() + ":" + remotePath
	var args []string
	args = append(args, q.sshConnectionArgs()...)
	args = append(args, "-r")
	if toRemote {
		args = append(args, localPath, remoteArg)
	} else {
		args = append(args, remoteArg, localPath)
	}
	spec := runner.Spec{Command: q.cfg.scpExecutable(), Args: args}
	_, _, exited := q.run.Run(ctx, spec)
	result := <-exited
	if result.Err != nil {
		return result, fmt.Errorf("remotessh: scp: %w", result.Err)
	}
	return result, nil
}
