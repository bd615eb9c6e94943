package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirload/internal/catalog"
)

func TestPolicyRun(t *testing.T) {
	t.Run("succeeds first attempt", func(t *testing.T) {
		fake := newFakeFHIRServer(t, map[string][]string{
			"FHIRIZED-GTEX/META": {successOutcome},
		})

		job, err := fake.policy(3).Run(context.Background(), dataset("FHIRIZED-GTEX/META"))
		require.NoError(t, err)

		assert.Equal(t, StateSucceeded, job.State)
		assert.Equal(t, 1, job.Attempt)
		assert.Equal(t, 1, fake.submissions("FHIRIZED-GTEX/META"))
	})

	t.Run("retryable failures then success", func(t *testing.T) {
		fake := newFakeFHIRServer(t, map[string][]string{
			"FHIRIZED-GTEX/META": {contentTypeFailureOutcome, contentTypeFailureOutcome, successOutcome},
		})

		job, err := fake.policy(3).Run(context.Background(), dataset("FHIRIZED-GTEX/META"))
		require.NoError(t, err)

		assert.Equal(t, StateSucceeded, job.State)
		assert.Equal(t, 3, job.Attempt)
		assert.Equal(t, 3, fake.submissions("FHIRIZED-GTEX/META"))
	})

	t.Run("retryable failures exhaust attempts", func(t *testing.T) {
		fake := newFakeFHIRServer(t, map[string][]string{
			"FHIRIZED-GTEX/META": {contentTypeFailureOutcome},
		})

		job, err := fake.policy(3).Run(context.Background(), dataset("FHIRIZED-GTEX/META"))
		require.NoError(t, err)

		assert.Equal(t, StateFailedRetryable, job.State)
		assert.Equal(t, 3, job.Attempt)
		assert.Equal(t, 3, fake.submissions("FHIRIZED-GTEX/META"))
		assert.Contains(t, job.LastError, "octet-stream")
	})

	t.Run("fatal failure is not retried", func(t *testing.T) {
		fake := newFakeFHIRServer(t, map[string][]string{
			"FHIRIZED-GTEX/META": {fatalFailureOutcome, successOutcome},
		})

		job, err := fake.policy(3).Run(context.Background(), dataset("FHIRIZED-GTEX/META"))
		require.NoError(t, err)

		assert.Equal(t, StateFailedFatal, job.State)
		assert.Equal(t, 1, job.Attempt)
		assert.Equal(t, 1, fake.submissions("FHIRIZED-GTEX/META"))
	})

	t.Run("rejected manifest is terminal for the dataset", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte("no inputs"))
		}))
		defer server.Close()

		policy := &Policy{
			Client: NewClient(ClientOptions{
				ServerURL:   server.URL,
				InputSource: fakeBucketURL,
				Timeout:     time.Second,
			}),
			Tracker:     fastTracker(),
			MaxAttempts: 3,
		}

		job, err := policy.Run(context.Background(), dataset("FHIRIZED-GTEX/META"))
		require.NoError(t, err)

		assert.Equal(t, StateFailedFatal, job.State)
		assert.Equal(t, 1, job.Attempt)
		assert.Contains(t, job.LastError, "no inputs")
	})

	t.Run("submission errors retry then exhaust", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		policy := &Policy{
			Client: NewClient(ClientOptions{
				ServerURL:   server.URL,
				InputSource: fakeBucketURL,
				Timeout:     time.Second,
			}),
			Tracker:     fastTracker(),
			MaxAttempts: 2,
		}

		job, err := policy.Run(context.Background(), dataset("FHIRIZED-GTEX/META"))
		require.NoError(t, err)

		assert.Equal(t, StateFailedRetryable, job.State)
		assert.Equal(t, 2, job.Attempt)
		assert.Equal(t, 2, requests)
	})

	t.Run("cancelled run returns context error", func(t *testing.T) {
		fake := newFakeFHIRServer(t, map[string][]string{
			"FHIRIZED-GTEX/META": {successOutcome},
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := fake.policy(3).Run(ctx, dataset("FHIRIZED-GTEX/META"))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("empty dataset never reaches the server", func(t *testing.T) {
		fake := newFakeFHIRServer(t, map[string][]string{})

		job, err := fake.policy(3).Run(context.Background(), catalog.Dataset{Name: "EMPTY-SET/META"})
		require.NoError(t, err)

		assert.Equal(t, StateFailedFatal, job.State)
		assert.Empty(t, fake.eventLog())
	})
}
