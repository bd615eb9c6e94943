package catalog

import "strings"

const (
	// ResourceSuffix is the only file suffix the server's bulk-import
	// parser accepts; anything else never reaches a manifest.
	ResourceSuffix = ".ndjson"

	// Dataset names are object paths truncated after this segment,
	// e.g. FHIRIZED-GTEX/META/Patient.ndjson -> FHIRIZED-GTEX/META.
	metaSegment = "META"

	// Datasets carrying this prefix are superseded R4 conversions and
	// are excluded from default import runs.
	legacyPrefix = "R4"

	// The implementation guide dataset installs server profiles and
	// search parameters that data imports may depend on.
	igDatasetName = "IG/META"
)

// Object is a single file in the dataset bucket.
type Object struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Dataset is one importable unit: every resource file sharing a
// group/variant prefix in the bucket namespace.
type Dataset struct {
	Name      string   `json:"name"`
	SizeBytes int64    `json:"size_bytes"`
	Objects   []Object `json:"objects,omitempty"`
}

func (d Dataset) IsLegacy() bool {
	return strings.HasPrefix(d.Name, legacyPrefix)
}

func (d Dataset) IsImplementationGuide() bool {
	return d.Name == igDatasetName
}

func (d Dataset) SizeMB() float64 {
	return float64(d.SizeBytes) / (1024 * 1024)
}

// datasetName maps an object path to its dataset name, or false if the
// object does not belong to any dataset (no META segment in its path).
func datasetName(objectName string) (string, bool) {
	idx := strings.Index(objectName, metaSegment)
	if idx < 0 {
		return "", false
	}
	return objectName[:idx+len(metaSegment)], true
}
