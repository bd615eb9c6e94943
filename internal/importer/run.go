package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fhirload/internal/catalog"
)

// Runner processes a planned sequence of datasets with bounded
// parallelism. The implementation guide dataset, when planned, is
// driven to a terminal state before anything else is submitted.
type Runner struct {
	Policy      *Policy
	Concurrency int
}

// Outcome is the reported result for one dataset. State holds the
// job's terminal state, or "cancelled" when the run stopped before
// the dataset reached one.
type Outcome struct {
	Dataset     string `json:"dataset"`
	SizeBytes   int64  `json:"size_bytes"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
	Report      string `json:"report,omitempty"`
}

const outcomeCancelled = "cancelled"

type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Datasets []Outcome `json:"datasets"`
	Summary  struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
		Retried   int `json:"retried"`
		Cancelled int `json:"cancelled"`
	} `json:"summary"`
}

// Run imports every planned dataset and reports the aggregate. A
// failed dataset never aborts the run; the error summarizes failures
// after all datasets finish, so callers can exit non-zero.
func (r *Runner) Run(ctx context.Context, datasets []catalog.Dataset) (*Report, error) {
	report := &Report{
		RunID:    uuid.NewString(),
		Started:  time.Now().UTC(),
		Datasets: []Outcome{},
	}
	slog.Info("Import run started", "run", report.RunID, "datasets", len(datasets), "concurrency", r.workers())

	remaining := datasets

	// Profiles installed by the implementation guide must be in place
	// before any data import is submitted.
	if len(remaining) > 0 && remaining[0].IsImplementationGuide() {
		outcome := r.processOne(ctx, remaining[0])
		report.Datasets = append(report.Datasets, outcome)
		remaining = remaining[1:]

		if ctx.Err() != nil {
			remaining = nil
		}
	}

	if len(remaining) > 0 {
		report.Datasets = append(report.Datasets, r.processPool(ctx, remaining)...)
	}

	report.Finished = time.Now().UTC()
	summarize(report)

	slog.Info("Import run finished", "run", report.RunID,
		"succeeded", report.Summary.Succeeded, "failed", report.Summary.Failed,
		"retried", report.Summary.Retried, "cancelled", report.Summary.Cancelled)

	if report.Summary.Failed > 0 {
		return report, fmt.Errorf("%d of %d datasets failed to import", report.Summary.Failed, report.Summary.Total)
	}
	if ctx.Err() != nil {
		return report, fmt.Errorf("import run cancelled: %w", ctx.Err())
	}
	return report, nil
}

func (r *Runner) workers() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return 2
}

// processPool fans datasets over a fixed worker pool. Each dataset's
// retry loop is independent; the pool is only there to keep the
// number of simultaneous bulk jobs on the server bounded.
func (r *Runner) processPool(ctx context.Context, datasets []catalog.Dataset) []Outcome {
	numWorkers := r.workers()
	if numWorkers > len(datasets) {
		numWorkers = len(datasets)
	}

	taskChan := make(chan catalog.Dataset, len(datasets))
	outcomeChan := make(chan Outcome, len(datasets))
	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for ds := range taskChan {
				if ctx.Err() != nil {
					outcomeChan <- cancelledOutcome(ds)
					continue
				}
				outcomeChan <- r.processOne(ctx, ds)
			}
		}()
	}

	for _, ds := range datasets {
		taskChan <- ds
	}
	close(taskChan)

	wg.Wait()
	close(outcomeChan)

	// Report in plan order regardless of completion order.
	byName := make(map[string]Outcome, len(datasets))
	for outcome := range outcomeChan {
		byName[outcome.Dataset] = outcome
	}
	outcomes := make([]Outcome, 0, len(datasets))
	for _, ds := range datasets {
		outcomes = append(outcomes, byName[ds.Name])
	}
	return outcomes
}

func (r *Runner) processOne(ctx context.Context, ds catalog.Dataset) Outcome {
	job, err := r.Policy.Run(ctx, ds)
	outcome := Outcome{
		Dataset:     ds.Name,
		SizeBytes:   ds.SizeBytes,
		State:       string(job.State),
		Attempts:    job.Attempt,
		Fingerprint: job.Fingerprint,
		Error:       job.LastError,
		Report:      job.Report,
	}
	if !job.State.Terminal() {
		outcome.State = outcomeCancelled
		if err != nil {
			outcome.Error = err.Error()
		}
	}
	return outcome
}

func cancelledOutcome(ds catalog.Dataset) Outcome {
	return Outcome{
		Dataset:   ds.Name,
		SizeBytes: ds.SizeBytes,
		State:     outcomeCancelled,
		Error:     "run cancelled before this dataset was submitted",
	}
}

func summarize(report *Report) {
	report.Summary.Total = len(report.Datasets)
	for _, outcome := range report.Datasets {
		switch outcome.State {
		case string(StateSucceeded):
			report.Summary.Succeeded++
		case string(StateFailedRetryable), string(StateFailedFatal):
			report.Summary.Failed++
		default:
			report.Summary.Cancelled++
		}
		if outcome.Attempts > 1 {
			report.Summary.Retried++
		}
	}
}
