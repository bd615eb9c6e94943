package importer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fhirload/internal/catalog"
)

// fakeFHIRServer scripts one terminal OperationOutcome per attempt for
// each dataset and records the order of submissions and completions.
type fakeFHIRServer struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	script   map[string][]string // dataset name -> outcome body per attempt
	attempts map[string]int
	jobs     map[string]string // job id -> outcome body
	events   []string          // "submit:<ds>" / "done:<ds>"
}

func newFakeFHIRServer(t *testing.T, script map[string][]string) *fakeFHIRServer {
	f := &fakeFHIRServer{
		t:        t,
		script:   script,
		attempts: make(map[string]int),
		jobs:     make(map[string]string),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFHIRServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/$import":
		f.handleKickoff(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/status/"):
		f.handleStatus(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeFHIRServer) handleKickoff(w http.ResponseWriter, r *http.Request) {
	var payload fhirParameters
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	dataset := f.datasetFromPayload(payload)
	if dataset == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	attempt := f.attempts[dataset]
	f.attempts[dataset]++
	outcomes := f.script[dataset]
	if attempt >= len(outcomes) {
		attempt = len(outcomes) - 1
	}
	jobID := fmt.Sprintf("%d-%s", len(f.jobs), strings.ReplaceAll(dataset, "/", "_"))
	f.jobs[jobID] = outcomes[attempt]
	f.events = append(f.events, "submit:"+dataset)
	f.mu.Unlock()

	w.Header().Set("Content-Location", f.server.URL+"/status/"+jobID)
	w.WriteHeader(http.StatusAccepted)
}

func (f *fakeFHIRServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/status/")

	f.mu.Lock()
	body, ok := f.jobs[jobID]
	if ok {
		dataset := strings.ReplaceAll(jobID[strings.Index(jobID, "-")+1:], "_", "/")
		f.events = append(f.events, "done:"+dataset)
	}
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeOutcome(w, body)
}

const fakeBucketURL = "https://storage.googleapis.com/fhir-aggregator-public/"

// datasetFromPayload recovers the dataset name from the first input
// URL, the same truncate-after-META rule the catalog uses.
func (f *fakeFHIRServer) datasetFromPayload(payload fhirParameters) string {
	for _, param := range payload.Parameter {
		if param.Name != "input" {
			continue
		}
		for _, part := range param.Part {
			if part.Name == "url" {
				name := strings.TrimPrefix(part.ValueURI, fakeBucketURL)
				idx := strings.Index(name, "META")
				if idx < 0 {
					return ""
				}
				return name[:idx+len("META")]
			}
		}
	}
	return ""
}

func (f *fakeFHIRServer) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeFHIRServer) submissions(dataset string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[dataset]
}

func (f *fakeFHIRServer) policy(maxAttempts int) *Policy {
	return &Policy{
		Client: NewClient(ClientOptions{
			ServerURL:   f.server.URL,
			InputSource: "https://storage.googleapis.com/fhir-aggregator-public",
			Timeout:     time.Second,
		}),
		Tracker:     fastTracker(),
		MaxAttempts: maxAttempts,
	}
}

func dataset(name string) catalog.Dataset {
	return catalog.Dataset{
		Name:      name,
		SizeBytes: 1024,
		Objects: []catalog.Object{
			{
				Name:      name + "/Patient.ndjson",
				URL:       "https://storage.googleapis.com/fhir-aggregator-public/" + name + "/Patient.ndjson",
				SizeBytes: 1024,
			},
		},
	}
}
