package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molequeue-io/molequeue/internal/program"
)

func sampleSettings() Settings {
	return Settings{
		"local": {
			Type:  "local",
			Cores: 4,
			Programs: []ProgramSettings{
				{Name: "sleep", Executable: "sleep", Arguments: "1", Syntax: "PLAIN"},
			},
		},
		"cluster": {
			Type:                 "pbs",
			HostName:             "cluster.example.org",
			UserName:             "alice",
			IdentityFile:         "/home/alice/.ssh/id_rsa",
			SSHExecutable:        "/usr/bin/ssh",
			SCPExecutable:        "/usr/bin/scp",
			WorkingDirectoryBase: "/scratch/alice",
			SubmissionCommand:    "qsub",
			KillCommand:          "qdel",
			RequestQueueCommand:  "qstat",
			LaunchTemplate:       "#!/bin/sh\n$$programExecution$$\n",
			QueueUpdateInterval:  3,
			DefaultMaxWallTime:   1440,
			Programs: []ProgramSettings{
				{Name: "gaussian", Executable: "g09", Syntax: "INPUT_ARG"},
			},
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	orig := sampleSettings()

	require.NoError(t, Save(path, orig))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, orig["local"].Cores, loaded["local"].Cores)
	assert.Equal(t, orig["cluster"].UserName, loaded["cluster"].UserName)
	assert.Equal(t, orig["cluster"].IdentityFile, loaded["cluster"].IdentityFile)
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestExportClearsSensitiveFields(t *testing.T) {
	exported := Export(sampleSettings())

	cluster := exported["cluster"]
	assert.Empty(t, cluster.UserName)
	assert.Empty(t, cluster.IdentityFile)
	assert.Empty(t, cluster.SSHExecutable)
	assert.Empty(t, cluster.SCPExecutable)
	assert.Equal(t, "cluster.example.org", cluster.HostName)
}

func TestToLocalConfig(t *testing.T) {
	qs := sampleSettings()["local"]
	cfg, err := ToLocalConfig("local", qs)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Name)
	assert.Equal(t, 4, cfg.MaxCores)
	require.Len(t, cfg.Programs, 1)
	assert.Equal(t, program.Plain, cfg.Programs[0].Syntax)
}

func TestToLocalConfigRejectsWrongType(t *testing.T) {
	qs := sampleSettings()["cluster"]
	_, err := ToLocalConfig("cluster", qs)
	assert.Error(t, err)
}

func TestToRemoteConfig(t *testing.T) {
	qs := sampleSettings()["cluster"]
	cfg, programs, adapter, err := ToRemoteConfig("cluster", qs)
	require.NoError(t, err)
	assert.Equal(t, "PBS/Torque", adapter.TypeName())
	assert.Equal(t, "cluster.example.org", cfg.HostName)
	require.Len(t, programs, 1)
	assert.Equal(t, program.InputArg, programs[0].Syntax)
}

func TestParseSyntaxRoundTrip(t *testing.T) {
	for _, name := range []string{"PLAIN", "INPUT_ARG", "INPUT_ARG_NO_EXT", "REDIRECT", "INPUT_ARG_OUTPUT_REDIRECT", "CUSTOM"} {
		syn, err := ParseSyntax(name)
		require.NoError(t, err)
		assert.Equal(t, name, SyntaxName(syn))
	}
}

func TestParseSyntaxRejectsUnknown(t *testing.T) {
	_, err := ParseSyntax("NOT_A_SYNTAX")
	assert.Error(t, err)
}
