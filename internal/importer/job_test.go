package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirload/internal/catalog"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateSubmitted, StatePolling, true},
		{StateSubmitted, StateSucceeded, false},
		{StatePolling, StatePolling, true},
		{StatePolling, StateSucceeded, true},
		{StatePolling, StateFailedRetryable, true},
		{StatePolling, StateFailedFatal, true},
		{StateSucceeded, StatePolling, false},
		{StateFailedFatal, StateSucceeded, false},
		{StateFailedRetryable, StatePolling, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateSubmitted.Terminal())
	assert.False(t, StatePolling.Terminal())
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailedRetryable.Terminal())
	assert.True(t, StateFailedFatal.Terminal())
}

func TestJobTransitionGuard(t *testing.T) {
	job := newJob(catalog.Dataset{Name: "FHIRIZED-GTEX/META"}, nil, "http://example/status/1")
	require.Equal(t, StateSubmitted, job.State)

	job.transition(StateSucceeded) // invalid, ignored
	assert.Equal(t, StateSubmitted, job.State)

	job.transition(StatePolling)
	assert.Equal(t, StatePolling, job.State)

	job.transition(StateSucceeded)
	assert.Equal(t, StateSucceeded, job.State)

	job.transition(StateFailedFatal) // terminal states never regress
	assert.Equal(t, StateSucceeded, job.State)
}

func TestFingerprint(t *testing.T) {
	manifest := []ManifestEntry{
		{URL: "https://example.com/a/META/Patient.ndjson"},
		{URL: "https://example.com/a/META/Observation.ndjson"},
	}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, fingerprint(manifest), fingerprint(manifest))
	})

	t.Run("sensitive to content", func(t *testing.T) {
		other := []ManifestEntry{
			{URL: "https://example.com/a/META/Patient.ndjson"},
		}
		assert.NotEqual(t, fingerprint(manifest), fingerprint(other))
	})

	t.Run("non-empty hex", func(t *testing.T) {
		assert.Regexp(t, "^[0-9a-f]{64}$", fingerprint(manifest))
	})
}
