package fetch

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
	"golang.org/x/sync/errgroup"
)

// NamedCatalog pairs a catalog with the name used in logs
type NamedCatalog struct {
	Name    string
	Catalog Catalog
}

// MultiCatalog queries several catalogs concurrently and merges their pools
type MultiCatalog struct {
	sources []NamedCatalog
}

// NewMultiCatalog creates a catalog over the given sources, in priority order
func NewMultiCatalog(sources ...NamedCatalog) *MultiCatalog {
	return &MultiCatalog{sources: sources}
}

// ListPools fetches every source in parallel. Results are joined in source
// order and pools whose id was already seen are dropped, so earlier sources
// win on conflicts. Address ids match regardless of casing.
func (m *MultiCatalog) ListPools(ctx context.Context) []model.Pool {
	results := make([][]model.Pool, len(m.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = src.Catalog.ListPools(gctx)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	merged := make([]model.Pool, 0)
	for i, pools := range results {
		added := 0
		for _, p := range pools {
			key := PoolKey(p.ID)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, p)
			added++
		}
		logrus.WithFields(logrus.Fields{
			"source": m.sources[i].Name,
			"pools":  len(pools),
			"added":  added,
		}).Debug("Catalog source merged")
	}

	logrus.Infof("Fetched pools from %d sources, total pools: %d", len(m.sources), len(merged))
	return merged
}
