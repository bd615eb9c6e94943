package importer

import (
	"fmt"
	"strings"
	"time"
)

// SubmissionError is a transport or auth failure while kicking off a
// job. The submission may succeed if repeated.
type SubmissionError struct {
	Dataset string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit import for %s: %v", e.Dataset, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// RejectedManifestError means the server refused the submission
// outright (or the manifest was empty). Retrying the same manifest
// cannot help.
type RejectedManifestError struct {
	Dataset string
	Reason  string
}

func (e *RejectedManifestError) Error() string {
	return fmt.Sprintf("server rejected import manifest for %s: %s", e.Dataset, e.Reason)
}

// TimeoutError means a job was still running when the maximum poll
// duration elapsed. The server-side job is not retracted.
type TimeoutError struct {
	Dataset string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("import job for %s did not finish within %s", e.Dataset, e.Elapsed)
}

// acceptedContentTypes are the declared content types the server's
// importer will fetch. The dataset bucket has been observed serving
// application/octet-stream instead, which the server rejects; that is
// a bucket metadata defect, fixable out-of-band, so errors naming it
// classify as retryable.
var acceptedContentTypes = []string{
	"application/ndjson",
	"application/fhir+ndjson",
	"application/json+fhir",
	"application/fhir+json",
	"application/json",
	"text/plain",
}

// retryableDiagnostics reports whether a server diagnostic matches the
// known content-type rejection signature. Anything else is treated as
// an unknown failure mode and not retried.
func retryableDiagnostics(message string) bool {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "octet-stream") {
		return true
	}
	return strings.Contains(lower, "content type") || strings.Contains(lower, "content-type")
}
