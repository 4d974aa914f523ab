package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

func TestParseJobID(t *testing.T) {
	id, err := parseJobID("42")
	require.NoError(t, err)
	assert.Equal(t, jobs.ID(42), id)

	_, err = parseJobID("not-a-number")
	assert.Error(t, err)
}

func TestEnvOrDefault(t *testing.T) {
	assert.Equal(t, "fallback", envOrDefault("MOLEQ_TEST_UNSET_VAR", "fallback"))

	os.Setenv("MOLEQ_TEST_SET_VAR", "configured")
	defer os.Unsetenv("MOLEQ_TEST_SET_VAR")
	assert.Equal(t, "configured", envOrDefault("MOLEQ_TEST_SET_VAR", "fallback"))
}
