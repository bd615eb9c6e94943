package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Lister enumerates every object in the dataset bucket.
type Lister interface {
	List(ctx context.Context) ([]Object, error)
}

// DiscoveryError means the catalog could not be enumerated at all.
// It is fatal for the whole run; no partial catalog is ever used.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("dataset discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Discover enumerates the bucket and groups resource files into
// datasets, summing object sizes per dataset. Objects without a META
// segment or without the resource suffix are not dataset members.
func Discover(ctx context.Context, lister Lister) ([]Dataset, error) {
	objects, err := lister.List(ctx)
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	// A dataset path with no resource files still yields an entry with
	// size 0, so operators can see it exists.
	groups := make(map[string][]Object)
	for _, obj := range objects {
		name, ok := datasetName(obj.Name)
		if !ok {
			slog.Debug("Skipping object outside any dataset", "object", obj.Name)
			continue
		}
		if _, seen := groups[name]; !seen {
			groups[name] = nil
		}
		if strings.HasSuffix(obj.Name, ResourceSuffix) {
			groups[name] = append(groups[name], obj)
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	datasets := make([]Dataset, 0, len(names))
	for _, name := range names {
		ds := Dataset{Name: name, Objects: groups[name]}
		for _, obj := range ds.Objects {
			ds.SizeBytes += obj.SizeBytes
		}
		datasets = append(datasets, ds)
	}

	slog.Info("Datasets discovered", "count", len(datasets), "objects", len(objects))
	return datasets, nil
}
