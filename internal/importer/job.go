package importer

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"fhirload/internal/catalog"
)

type State string

const (
	StateSubmitted       State = "submitted"
	StatePolling         State = "polling"
	StateSucceeded       State = "succeeded"
	StateFailedRetryable State = "failed_retryable"
	StateFailedFatal     State = "failed_fatal"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailedRetryable, StateFailedFatal:
		return true
	}
	return false
}

// CanTransitionTo enforces the job lifecycle:
//
//	submitted -> polling
//	polling   -> polling | succeeded | failed_retryable | failed_fatal
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateSubmitted:
		return next == StatePolling
	case StatePolling:
		return next == StatePolling || next.Terminal()
	default:
		return false
	}
}

// ManifestEntry is one resource file handed to the server. The server
// fetches the URL itself; the orchestrator never moves file bytes.
type ManifestEntry struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Job is one bulk-import attempt for one dataset. All retry and error
// state lives here, so many jobs can run concurrently without shared
// counters.
type Job struct {
	ID          string          `json:"id"`
	DatasetName string          `json:"dataset"`
	Manifest    []ManifestEntry `json:"-"`
	// Fingerprint identifies the submitted manifest; identical
	// fingerprints across runs mean the same content was resubmitted.
	Fingerprint string `json:"fingerprint"`
	StatusURL   string `json:"-"`
	State       State  `json:"state"`
	Attempt     int    `json:"attempt"`
	ErrorCount  int    `json:"error_count,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Report      string `json:"report,omitempty"`
}

func newJob(ds catalog.Dataset, manifest []ManifestEntry, statusURL string) *Job {
	return &Job{
		ID:          uuid.NewString(),
		DatasetName: ds.Name,
		Manifest:    manifest,
		Fingerprint: fingerprint(manifest),
		StatusURL:   statusURL,
		State:       StateSubmitted,
		Attempt:     1,
	}
}

func (j *Job) transition(next State) {
	if !j.State.CanTransitionTo(next) {
		// Terminal states never regress; anything else is a
		// programming error surfaced by tests.
		return
	}
	j.State = next
}

func fingerprint(manifest []ManifestEntry) string {
	hasher := blake3.New()
	for _, entry := range manifest {
		hasher.Write([]byte(entry.URL))
		hasher.Write([]byte{'\n'})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
