// Package plan decides which discovered datasets an import run will
// process, and in what order.
package plan

import (
	"log/slog"
	"strings"

	"fhirload/internal/catalog"
)

type Options struct {
	// Filter keeps only datasets whose name contains it (case
	// sensitive), matching the CLI --only flag.
	Filter string
	// IncludeLegacy re-adds superseded datasets. A Filter match alone
	// does not override the legacy exclusion; operators must ask for
	// legacy data explicitly.
	IncludeLegacy bool
}

// Build filters the catalog into an ordered import plan. The
// implementation guide dataset, if selected, is moved to the front:
// it installs profiles the data imports depend on. An empty plan is
// not an error; the caller reports "nothing to import".
func Build(datasets []catalog.Dataset, opts Options) []catalog.Dataset {
	planned := make([]catalog.Dataset, 0, len(datasets))
	var ig *catalog.Dataset

	for _, ds := range datasets {
		if opts.Filter != "" && !strings.Contains(ds.Name, opts.Filter) {
			continue
		}
		if ds.IsLegacy() && !opts.IncludeLegacy {
			slog.Debug("Excluding legacy dataset", "dataset", ds.Name)
			continue
		}
		if ds.IsImplementationGuide() && ig == nil {
			d := ds
			ig = &d
			continue
		}
		planned = append(planned, ds)
	}

	if ig != nil {
		planned = append([]catalog.Dataset{*ig}, planned...)
	}

	return planned
}
