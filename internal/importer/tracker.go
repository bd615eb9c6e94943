package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// errStillRunning drives the backoff loop while the server reports
// the job as in progress.
var errStillRunning = errors.New("import job still running")

// Tracker polls a submitted job's status endpoint until it reaches a
// terminal state, the maximum poll duration elapses, or the run is
// cancelled.
type Tracker struct {
	http            *resty.Client
	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsed      time.Duration
	maxPollErrors   int
}

type TrackerOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxPollErrors   int
	Timeout         time.Duration
}

func NewTracker(opts TrackerOptions) *Tracker {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 10 * time.Second
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = time.Minute
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 45 * time.Minute
	}
	if opts.MaxPollErrors <= 0 {
		opts.MaxPollErrors = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Tracker{
		http:            resty.New().SetTimeout(opts.Timeout),
		initialInterval: opts.InitialInterval,
		maxInterval:     opts.MaxInterval,
		maxElapsed:      opts.MaxElapsed,
		maxPollErrors:   opts.MaxPollErrors,
	}
}

// Await drives the job to a terminal state. It returns an error only
// on cancellation, in which case the job is left non-terminal and no
// further polls are issued; the server-side job is not retracted.
func (t *Tracker) Await(ctx context.Context, job *Job) error {
	job.transition(StatePolling)
	start := time.Now()
	consecutiveErrors := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initialInterval
	b.MaxInterval = t.maxInterval
	b.MaxElapsedTime = t.maxElapsed

	op := func() error {
		res, err := t.poll(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			job.ErrorCount++
			consecutiveErrors++
			slog.Warn("Poll failed", "dataset", job.DatasetName, "job", job.ID,
				"consecutive", consecutiveErrors, "error", err)
			if consecutiveErrors >= t.maxPollErrors {
				return backoff.Permanent(fmt.Errorf("giving up after %d consecutive poll failures: %w", consecutiveErrors, err))
			}
			return err
		}
		consecutiveErrors = 0

		if res.running {
			slog.Debug("Import in progress", "dataset", job.DatasetName, "elapsed", time.Since(start).Round(time.Second))
			return errStillRunning
		}

		t.finish(job, res)
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		slog.Warn("Polling cancelled", "dataset", job.DatasetName, "job", job.ID)
		return fmt.Errorf("polling cancelled for %s: %w", job.DatasetName, ctx.Err())
	}

	if errors.Is(err, errStillRunning) {
		// The server job may still finish on its own, but the run
		// will not wait for it.
		timeout := &TimeoutError{Dataset: job.DatasetName, Elapsed: time.Since(start).Round(time.Second)}
		job.LastError = timeout.Error()
		job.transition(StateFailedFatal)
		slog.Error("Import timed out", "dataset", job.DatasetName, "job", job.ID, "elapsed", timeout.Elapsed)
		return nil
	}

	job.LastError = err.Error()
	job.transition(StateFailedFatal)
	return nil
}

func (t *Tracker) finish(job *Job, res *pollResult) {
	job.ErrorCount += res.errorCount

	if res.failed {
		job.LastError = res.message
		if retryableDiagnostics(res.message) {
			job.transition(StateFailedRetryable)
			slog.Warn("Import failed with retryable error", "dataset", job.DatasetName,
				"job", job.ID, "error", res.message)
		} else {
			job.transition(StateFailedFatal)
			slog.Error("Import failed", "dataset", job.DatasetName, "job", job.ID, "error", res.message)
		}
		return
	}

	job.Report = res.report
	job.transition(StateSucceeded)
	slog.Info("Import completed", "dataset", job.DatasetName, "job", job.ID, "report", res.report)
}

type pollResult struct {
	running    bool
	failed     bool
	errorCount int
	message    string
	report     string
}

type operationOutcome struct {
	ResourceType string         `json:"resourceType"`
	Issue        []outcomeIssue `json:"issue"`
}

type outcomeIssue struct {
	Severity string `json:"severity"`
	Details  struct {
		Text string `json:"text"`
	} `json:"details"`
	Diagnostics string `json:"diagnostics"`
}

func (t *Tracker) poll(ctx context.Context, job *Job) (*pollResult, error) {
	resp, err := t.http.R().SetContext(ctx).Get(job.StatusURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusAccepted {
		return &pollResult{running: true}, nil
	}

	contentType := resp.Header().Get("Content-Type")
	if !strings.Contains(contentType, "json") {
		return nil, fmt.Errorf("unexpected content type %q from status endpoint", contentType)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode(), snippet(resp.String()))
	}

	var outcome operationOutcome
	if err := json.Unmarshal(resp.Body(), &outcome); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if outcome.ResourceType != "OperationOutcome" {
		return nil, fmt.Errorf("unexpected resource type %q in status response", outcome.ResourceType)
	}

	res := &pollResult{}
	var messages []string
	for _, issue := range outcome.Issue {
		slog.Debug("OperationOutcome issue", "dataset", job.DatasetName,
			"severity", issue.Severity, "details", issue.Details.Text)

		if issue.Severity == "error" || issue.Severity == "fatal" {
			res.errorCount++
			msg := issue.Details.Text
			if msg == "" {
				msg = issue.Diagnostics
			}
			messages = append(messages, msg)
		}
	}

	if res.errorCount > 0 {
		res.failed = true
		res.message = strings.Join(messages, "; ")
		return res, nil
	}

	// A single information issue with reportMsg diagnostics carries
	// the server's human-readable import report.
	if len(outcome.Issue) == 1 && outcome.Issue[0].Severity == "information" &&
		strings.Contains(outcome.Issue[0].Diagnostics, "reportMsg") {
		var diag struct {
			ReportMsg string `json:"reportMsg"`
		}
		if err := json.Unmarshal([]byte(outcome.Issue[0].Diagnostics), &diag); err == nil {
			res.report = diag.ReportMsg
		}
	}

	return res, nil
}
