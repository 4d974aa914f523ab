package local

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
	"github.com/molequeue-io/molequeue/internal/runner"
)

// keywords builds the minimum keyword set spec §4.4 requires, plus the
// job's own free-form keywords (job keywords take precedence on
// collision, matching the original's per-job override semantics).
func (q *Queue) keywords(data jobs.Data, p program.Program) program.Keywords {
	inputName := data.InputFile.Filename()
	inputBase := data.InputFile.FileBaseName()
	outputName := p.OutputFilenameTemplate
	if outputName == "" {
		outputName = p.Name + ".out"
	}

	kw := program.BaseKeywords(int64(data.MoleQueueID), int64(data.NumberOfCores), int64(data.MaxWallTime), inputName, inputBase, outputName)
	for k, v := range data.Keywords {
		kw[k] = v
	}
	return kw
}

// launchTemplate resolves the Custom-syntax driver script body for data.
// Local queues have no queue-wide launchTemplate of their own beyond a
// minimal shebang-and-invocation wrapper; the Program's rendered
// invocation is still expanded through the same $$programExecution$$ /
// $$keyword$$ substitution order as the remote pipeline (spec §4.4), so a
// single Program definition behaves identically whether it runs local or
// remote.
func (q *Queue) launchTemplate(data jobs.Data, p program.Program) string {
	const template = "#!/bin/sh\n$$programExecution$$\n"
	return program.Expand(template, p, q.keywords(data, p))
}

// buildRunSpec translates a Program and its launch syntax into the
// runner.Spec the abstract Runner executes (spec §4.4, §4.6 step 4).
func buildRunSpec(data jobs.Data, p program.Program) runner.Spec {
	exec := p.Executable
	if p.ExecutablePath != "" {
		exec = p.ExecutablePath
	}

	spec := runner.Spec{Dir: data.LocalWorkingDirectory}
	args := splitArgs(p.Arguments)

	inputName := data.InputFile.Filename()
	outputName := p.OutputFilenameTemplate
	if outputName == "" {
		outputName = p.Name + ".out"
	}

	switch p.Syntax {
	case program.Plain:
		spec.Command, spec.Args = exec, args
	case program.InputArg:
		spec.Command, spec.Args = exec, append(args, inputName)
	case program.InputArgNoExt:
		spec.Command, spec.Args = exec, append(args, data.InputFile.FileBaseName())
	case program.Redirect:
		spec.Command, spec.Args = exec, args
		spec.Stdin = openInput(data.LocalWorkingDirectory, inputName)
		spec.Stdout = createOutput(data.LocalWorkingDirectory, outputName)
	case program.InputArgOutputRedirect:
		spec.Command, spec.Args = exec, append(args, inputName)
		spec.Stdout = createOutput(data.LocalWorkingDirectory, outputName)
	case program.Custom:
		spec.Command, spec.Args = "./"+driverScriptName, nil
	default:
		spec.Command, spec.Args = exec, args
	}
	return spec
}

func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// openInput/createOutput best-effort open the job's staged input/output
// files for REDIRECT-family launch syntax. A failure here surfaces as a
// nil stream, which the ExecRunner tolerates (os/exec leaves stdin/stdout
// at the zero value); a production deployment that hits this path with a
// missing input file would already have failed staging in stage.go.
func openInput(dir, name string) io.Reader {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil
	}
	return f
}

func createOutput(dir, name string) io.Writer {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil
	}
	return f
}
