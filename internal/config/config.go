// Package config reads and writes the broker's persisted "Queues" settings
// blob (spec §6): a JSON document describing every configured queue and
// its programs, the Go equivalent of the original's per-queue QSettings
// groups (original_source/molequeue/queuemanager.cpp,
// queues/queuelocal.cpp, queues/remote.cpp).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/molequeue-io/molequeue/internal/program"
	"github.com/molequeue-io/molequeue/internal/queue/local"
	"github.com/molequeue-io/molequeue/internal/queue/remotessh"
)

// ProgramSettings is the on-disk shape of one Program within a queue's
// nested "Programs" group (spec §6).
type ProgramSettings struct {
	Name                   string `json:"name"`
	Executable             string `json:"executable"`
	ExecutablePath         string `json:"executablePath,omitempty"`
	Arguments              string `json:"arguments,omitempty"`
	InputFilenameTemplate  string `json:"inputFilenameTemplate,omitempty"`
	OutputFilenameTemplate string `json:"outputFilenameTemplate,omitempty"`
	// Syntax is one of PLAIN, INPUT_ARG, INPUT_ARG_NO_EXT, REDIRECT,
	// INPUT_ARG_OUTPUT_REDIRECT, CUSTOM, matching the original's
	// LaunchSyntax enumerator names (original_source/molequeue/program.h).
	Syntax string `json:"launchSyntax"`
}

// QueueSettings is the on-disk shape of one queue key group (spec §6).
// Type selects "local", "pbs", or "sge".
type QueueSettings struct {
	Type string `json:"type"`

	SubmissionCommand    string `json:"submissionCommand,omitempty"`
	KillCommand          string `json:"killCommand,omitempty"`
	RequestQueueCommand  string `json:"requestQueueCommand,omitempty"`
	WorkingDirectoryBase string `json:"workingDirectoryBase,omitempty"`

	HostName string `json:"hostName,omitempty"`
	SSHPort  int    `json:"sshPort,omitempty"`

	// UserName, IdentityFile, SSHExecutable, and SCPExecutable are
	// sensitive (spec §6): Export zeroes them before handing a Settings
	// value to anything outside the broker process, but Load/Save always
	// round-trip them in full against the on-disk blob.
	UserName      string `json:"userName,omitempty"`
	IdentityFile  string `json:"identityFile,omitempty"`
	SSHExecutable string `json:"sshExecutable,omitempty"`
	SCPExecutable string `json:"scpExecutable,omitempty"`

	LaunchTemplate      string `json:"launchTemplate,omitempty"`
	QueueUpdateInterval int    `json:"queueUpdateInterval,omitempty"` // minutes
	DefaultMaxWallTime  int    `json:"defaultMaxWallTime,omitempty"`  // minutes

	// Cores applies only to Type == "local".
	Cores int `json:"cores,omitempty"`

	Programs []ProgramSettings `json:"programs"`
}

// Settings is the full "Queues" blob: queue name -> its settings.
type Settings map[string]QueueSettings

// Load reads and parses the settings blob at path. A missing file is not
// an error — it returns an empty Settings, matching a freshly installed
// broker with no configured queues.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var wrapper struct {
		Queues Settings `json:"Queues"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if wrapper.Queues == nil {
		wrapper.Queues = Settings{}
	}
	return wrapper.Queues, nil
}

// Save writes s to path as the "Queues" settings blob, with every field
// populated in full (sensitive fields included) per spec §6.
func Save(path string, s Settings) error {
	wrapper := struct {
		Queues Settings `json:"Queues"`
	}{Queues: s}
	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Export returns a copy of s with the sensitive fields (userName,
// identityFile, sshExecutable, scpExecutable) cleared, for handing to
// anything outside the broker process itself (spec §6).
func Export(s Settings) Settings {
	out := make(Settings, len(s))
	for name, qs := range s {
		qs.UserName = ""
		qs.IdentityFile = ""
		qs.SSHExecutable = ""
		qs.SCPExecutable = ""
		out[name] = qs
	}
	return out
}

var syntaxByName = map[string]program.Syntax{
	"PLAIN":                     program.Plain,
	"INPUT_ARG":                 program.InputArg,
	"INPUT_ARG_NO_EXT":          program.InputArgNoExt,
	"REDIRECT":                  program.Redirect,
	"INPUT_ARG_OUTPUT_REDIRECT": program.InputArgOutputRedirect,
	"CUSTOM":                    program.Custom,
}

var nameBySyntax = func() map[program.Syntax]string {
	m := make(map[program.Syntax]string, len(syntaxByName))
	for name, syn := range syntaxByName {
		m[syn] = name
	}
	return m
}()

// ParseSyntax resolves a launchSyntax name to its program.Syntax value.
func ParseSyntax(name string) (program.Syntax, error) {
	syn, ok := syntaxByName[name]
	if !ok {
		return 0, fmt.Errorf("config: unrecognized launchSyntax %q", name)
	}
	return syn, nil
}

// SyntaxName renders a program.Syntax back to its on-disk name.
func SyntaxName(syn program.Syntax) string {
	if name, ok := nameBySyntax[syn]; ok {
		return name
	}
	return "PLAIN"
}

func toPrograms(ps []ProgramSettings) ([]program.Program, error) {
	out := make([]program.Program, 0, len(ps))
	for _, p := range ps {
		syn, err := ParseSyntax(p.Syntax)
		if err != nil {
			return nil, fmt.Errorf("config: program %q: %w", p.Name, err)
		}
		out = append(out, program.Program{
			Name:                   p.Name,
			Executable:             p.Executable,
			ExecutablePath:         p.ExecutablePath,
			Arguments:              p.Arguments,
			InputFilenameTemplate:  p.InputFilenameTemplate,
			OutputFilenameTemplate: p.OutputFilenameTemplate,
			Syntax:                 syn,
		})
	}
	return out, nil
}

// ToLocalConfig converts qs into a local.Config for queue.local.New. It
// returns an error if qs.Type is not "local".
func ToLocalConfig(name string, qs QueueSettings) (local.Config, error) {
	if qs.Type != "local" {
		return local.Config{}, fmt.Errorf("config: queue %q is not type local (got %q)", name, qs.Type)
	}
	programs, err := toPrograms(qs.Programs)
	if err != nil {
		return local.Config{}, err
	}
	return local.Config{Name: name, Programs: programs, MaxCores: qs.Cores}, nil
}

// ToRemoteConfig converts qs into a remotessh.Config and the matching
// scheduler Adapter for queue.remotessh.New. It returns an error if
// qs.Type is not "pbs" or "sge".
func ToRemoteConfig(name string, qs QueueSettings) (remotessh.Config, []program.Program, remotessh.Adapter, error) {
	var adapter remotessh.Adapter
	switch qs.Type {
	case "pbs":
		adapter = remotessh.PBS{}
	case "sge":
		adapter = remotessh.SGE{}
	default:
		return remotessh.Config{}, nil, nil, fmt.Errorf("config: queue %q is not a remote scheduler type (got %q)", name, qs.Type)
	}

	programs, err := toPrograms(qs.Programs)
	if err != nil {
		return remotessh.Config{}, nil, nil, err
	}

	cfg := remotessh.Config{
		Name:                 name,
		Adapter:              adapter,
		HostName:             qs.HostName,
		UserName:             qs.UserName,
		SSHPort:              qs.SSHPort,
		IdentityFile:         qs.IdentityFile,
		SSHExecutable:        qs.SSHExecutable,
		SCPExecutable:        qs.SCPExecutable,
		WorkingDirectoryBase: qs.WorkingDirectoryBase,
		SubmissionCommand:    qs.SubmissionCommand,
		KillCommand:          qs.KillCommand,
		RequestQueueCommand:  qs.RequestQueueCommand,
		LaunchTemplate:       qs.LaunchTemplate,
		QueueUpdateInterval:  time.Duration(qs.QueueUpdateInterval) * time.Minute,
		DefaultMaxWallTime:   qs.DefaultMaxWallTime,
	}
	return cfg, programs, adapter, nil
}
