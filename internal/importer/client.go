package importer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"fhirload/internal/catalog"
)

// Client submits bulk-import kickoff requests. One call creates one
// server-side job; idempotence is the caller's responsibility.
type Client struct {
	http        *resty.Client
	inputSource string
}

type ClientOptions struct {
	ServerURL   string
	InputSource string
	Timeout     time.Duration
	RetryCount  int
}

func NewClient(opts ClientOptions) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.ServerURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return false
			}
			switch r.StatusCode() {
			case 500, 502, 503, 504:
				return true
			}
			return false
		})

	return &Client{
		http:        httpClient,
		inputSource: strings.TrimSuffix(opts.InputSource, "/") + "/",
	}
}

// fhirParameters is the Parameters resource the $import operation
// takes: inputFormat, inputSource, storageDetail, then one input part
// per resource file.
type fhirParameters struct {
	ResourceType string          `json:"resourceType"`
	Parameter    []fhirParameter `json:"parameter"`
}

type fhirParameter struct {
	Name        string          `json:"name"`
	ValueString string          `json:"valueString,omitempty"`
	ValueURI    string          `json:"valueUri,omitempty"`
	ValueCode   string          `json:"valueCode,omitempty"`
	Part        []fhirParameter `json:"part,omitempty"`
}

// Submit builds the dataset's manifest and kicks off one asynchronous
// bulk-import job for it. The returned job is in state Submitted with
// the server's status URL as its handle.
func (c *Client) Submit(ctx context.Context, ds catalog.Dataset) (*Job, error) {
	manifest := buildManifest(ds)
	if len(manifest) == 0 {
		return nil, &RejectedManifestError{Dataset: ds.Name, Reason: "no importable resource files"}
	}

	slog.Info("Submitting import", "dataset", ds.Name, "resources", len(manifest))

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/fhir+json").
		SetHeader("Prefer", "respond-async").
		SetHeader("X-Upsert-Extistence-Check", "disabled").
		SetBody(kickoffParameters(c.inputSource, manifest)).
		Post("/$import")
	if err != nil {
		return nil, &SubmissionError{Dataset: ds.Name, Err: err}
	}

	statusURL := resp.Header().Get("Content-Location")
	if statusURL == "" {
		if resp.StatusCode() >= 500 {
			return nil, &SubmissionError{
				Dataset: ds.Name,
				Err:     fmt.Errorf("server returned %d: %s", resp.StatusCode(), snippet(resp.String())),
			}
		}
		return nil, &RejectedManifestError{
			Dataset: ds.Name,
			Reason:  fmt.Sprintf("no job handle in response (status %d): %s", resp.StatusCode(), snippet(resp.String())),
		}
	}

	job := newJob(ds, manifest, statusURL)
	slog.Info("Import job submitted", "dataset", ds.Name, "job", job.ID, "statusUrl", statusURL)
	return job, nil
}

// buildManifest keeps only server-importable files. Objects declaring
// a non-JSON content type are still submitted (the server is the
// authority) but logged so the operator can run metadata repair.
func buildManifest(ds catalog.Dataset) []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(ds.Objects))
	for _, obj := range ds.Objects {
		if !strings.HasSuffix(obj.URL, catalog.ResourceSuffix) {
			continue
		}
		if obj.ContentType != "" && !contentTypeAccepted(obj.ContentType) {
			slog.Warn("Object declares a content type the server rejects",
				"url", obj.URL, "contentType", obj.ContentType)
		}
		entries = append(entries, ManifestEntry{
			URL:         obj.URL,
			ContentType: obj.ContentType,
			SizeBytes:   obj.SizeBytes,
		})
	}
	return entries
}

func contentTypeAccepted(contentType string) bool {
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, accepted := range acceptedContentTypes {
		if strings.EqualFold(base, accepted) {
			return true
		}
	}
	return false
}

func kickoffParameters(inputSource string, manifest []ManifestEntry) fhirParameters {
	params := fhirParameters{
		ResourceType: "Parameters",
		Parameter: []fhirParameter{
			{Name: "inputFormat", ValueString: "application/fhir+ndjson"},
			{Name: "inputSource", ValueURI: inputSource},
			{
				Name: "storageDetail",
				Part: []fhirParameter{
					{Name: "type", ValueCode: "https"},
				},
			},
		},
	}

	for _, entry := range manifest {
		params.Parameter = append(params.Parameter, fhirParameter{
			Name: "input",
			Part: []fhirParameter{
				{Name: "type", ValueCode: resourceTypeFromURL(entry.URL)},
				{Name: "url", ValueURI: entry.URL},
			},
		})
	}

	return params
}

// resourceTypeFromURL derives the FHIR resource type from the file
// name, e.g. .../META/Patient.ndjson -> Patient.
func resourceTypeFromURL(url string) string {
	return strings.TrimSuffix(path.Base(url), catalog.ResourceSuffix)
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 300 {
		return body[:300] + "..."
	}
	return body
}
