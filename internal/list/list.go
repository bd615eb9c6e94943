package list

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"fhirload/internal/catalog"
)

type DatasetInfo struct {
	Name                string  `json:"name"`
	SizeBytes           int64   `json:"size_bytes"`
	SizeMB              float64 `json:"size_mb"`
	Objects             int     `json:"objects"`
	Legacy              bool    `json:"legacy,omitempty"`
	ImplementationGuide bool    `json:"implementation_guide,omitempty"`
}

type Output struct {
	Datasets []DatasetInfo `json:"datasets"`
	Summary  struct {
		TotalDatasets  int     `json:"total_datasets"`
		LegacyDatasets int     `json:"legacy_datasets"`
		TotalSizeMB    float64 `json:"total_size_mb"`
	} `json:"summary"`
}

// Run discovers the catalog and prints it as indented JSON.
func Run(ctx context.Context, lister catalog.Lister) error {
	datasets, err := catalog.Discover(ctx, lister)
	if err != nil {
		return err
	}

	output := Output{
		Datasets: []DatasetInfo{},
	}

	for _, ds := range datasets {
		output.Datasets = append(output.Datasets, DatasetInfo{
			Name:                ds.Name,
			SizeBytes:           ds.SizeBytes,
			SizeMB:              roundMB(ds.SizeMB()),
			Objects:             len(ds.Objects),
			Legacy:              ds.IsLegacy(),
			ImplementationGuide: ds.IsImplementationGuide(),
		})

		output.Summary.TotalDatasets++
		if ds.IsLegacy() {
			output.Summary.LegacyDatasets++
		}
		output.Summary.TotalSizeMB += ds.SizeMB()
	}
	output.Summary.TotalSizeMB = roundMB(output.Summary.TotalSizeMB)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

func roundMB(mb float64) float64 {
	return math.Round(mb*100) / 100
}
