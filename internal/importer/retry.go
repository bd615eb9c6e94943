package importer

import (
	"context"
	"errors"
	"log/slog"

	"fhirload/internal/catalog"
)

// Policy runs one dataset's submit/await loop, resubmitting while the
// failure is classified retryable.
type Policy struct {
	Client      *Client
	Tracker     *Tracker
	MaxAttempts int
}

// Run returns the final job for the dataset. Dataset-level failures
// are captured in the job's state, never as an error; the returned
// error is non-nil only when the run was cancelled.
func (p *Policy) Run(ctx context.Context, ds catalog.Dataset) (*Job, error) {
	var job *Job

	for attempt := 1; ; attempt++ {
		submitted, err := p.Client.Submit(ctx, ds)
		if err != nil {
			if ctx.Err() != nil {
				// Leave the job non-terminal; the run reports it as
				// cancelled rather than failed.
				return failedSubmission(ds, attempt, err, StateSubmitted), ctx.Err()
			}

			var rejected *RejectedManifestError
			if errors.As(err, &rejected) {
				slog.Error("Manifest rejected", "dataset", ds.Name, "reason", rejected.Reason)
				return failedSubmission(ds, attempt, err, StateFailedFatal), nil
			}

			if attempt < p.MaxAttempts {
				slog.Warn("Submission failed, will retry", "dataset", ds.Name,
					"attempt", attempt, "maxAttempts", p.MaxAttempts, "error", err)
				continue
			}
			slog.Error("Submission failed, retries exhausted", "dataset", ds.Name,
				"attempt", attempt, "error", err)
			return failedSubmission(ds, attempt, err, StateFailedRetryable), nil
		}

		job = submitted
		job.Attempt = attempt

		if err := p.Tracker.Await(ctx, job); err != nil {
			return job, err
		}

		switch job.State {
		case StateSucceeded:
			return job, nil
		case StateFailedRetryable:
			if attempt < p.MaxAttempts {
				slog.Warn("Retrying import", "dataset", ds.Name,
					"attempt", attempt, "maxAttempts", p.MaxAttempts, "error", job.LastError)
				continue
			}
			slog.Error("Retries exhausted; bucket metadata needs repair before this can succeed",
				"dataset", ds.Name, "attempts", attempt, "error", job.LastError)
			return job, nil
		default:
			return job, nil
		}
	}
}

// failedSubmission records a terminal outcome for a dataset whose job
// never got a server handle.
func failedSubmission(ds catalog.Dataset, attempt int, err error, state State) *Job {
	job := newJob(ds, buildManifest(ds), "")
	job.Attempt = attempt
	job.State = state
	job.LastError = err.Error()
	return job
}
