package catalog

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/stockroom/internal/domain/product"
)

const (
	bloomFPR      = 0.001
	minBloomItems = 1024
	progressEvery = 100_000
)

// Store is the catalog persistence used by Importer and Seed.
type Store interface {
	SKUs(ctx context.Context) ([]string, error)
	ExistingSKUs(ctx context.Context, skus []string) ([]string, error)
	CopyProducts(ctx context.Context, ps []product.Product) (int64, error)
	AddStock(ctx context.Context, bySKU map[string]int, at time.Time) error
	Upsert(ctx context.Context, p *product.Product) error
}

// Stats summarises an import run.
type Stats struct {
	Records   int
	Inserted  int64
	Restocked int
	// Candidates is the number of SKUs the bloom filter flagged as possibly
	// known and that had to be confirmed against the database.
	Candidates int
}

// Importer loads gzipped JSONL catalog feeds. SKUs not yet in the catalog
// are inserted with COPY; quantities of known SKUs are added to stock.
type Importer struct {
	store Store
	lg    *zap.Logger
	now   func() time.Time
}

// NewImporter creates an Importer.
func NewImporter(store Store, lg *zap.Logger) *Importer {
	return &Importer{store: store, lg: lg, now: time.Now}
}

// Run imports every file. Files are decoded concurrently; a SKU listed more
// than once keeps the first record's details and sums the quantities.
func (im *Importer) Run(ctx context.Context, files []string) (Stats, error) {
	var stats Stats

	perFile, err := im.decodeAll(ctx, files)
	if err != nil {
		return stats, errors.Wrap(err, "decode files")
	}

	merged := make(map[string]product.Product)
	var order []string
	now := im.now()
	for _, records := range perFile {
		for _, r := range records {
			stats.Records++
			p, err := r.Product(now)
			if err != nil {
				return stats, err
			}
			if existing, ok := merged[p.SKU]; ok {
				existing.QuantityInStock += p.QuantityInStock
				merged[p.SKU] = existing
				continue
			}
			merged[p.SKU] = p
			order = append(order, p.SKU)
		}
	}
	if len(merged) == 0 {
		im.lg.Info("Nothing to import")
		return stats, nil
	}

	known, candidates, err := im.knownSKUs(ctx, order)
	if err != nil {
		return stats, err
	}
	stats.Candidates = candidates

	var (
		fresh   []product.Product
		restock = make(map[string]int)
	)
	for _, sku := range order {
		p := merged[sku]
		if _, ok := known[sku]; ok {
			restock[sku] += p.QuantityInStock
			continue
		}
		fresh = append(fresh, p)
	}

	if len(fresh) > 0 {
		n, err := im.store.CopyProducts(ctx, fresh)
		if err != nil {
			return stats, errors.Wrap(err, "insert products")
		}
		stats.Inserted = n
	}
	if len(restock) > 0 {
		if err := im.store.AddStock(ctx, restock, now); err != nil {
			return stats, errors.Wrap(err, "restock products")
		}
		stats.Restocked = len(restock)
	}

	im.lg.Info("Import complete",
		zap.Int("records", stats.Records),
		zap.Int64("inserted", stats.Inserted),
		zap.Int("restocked", stats.Restocked),
		zap.Int("candidates", stats.Candidates),
	)
	return stats, nil
}

// Seed upserts the records one by one, overwriting products with the same SKU.
func (im *Importer) Seed(ctx context.Context, records []Record) (int, error) {
	now := im.now()
	for i, r := range records {
		p, err := r.Product(now)
		if err != nil {
			return i, err
		}
		if err := im.store.Upsert(ctx, &p); err != nil {
			return i, errors.Wrapf(err, "upsert %s", p.SKU)
		}
	}
	im.lg.Info("Seeded products", zap.Int("count", len(records)))
	return len(records), nil
}

func (im *Importer) decodeAll(ctx context.Context, files []string) ([][]Record, error) {
	out := make([][]Record, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var records []Record
			if err := StreamFile(ctx, path, func(r Record) error {
				records = append(records, r)
				if len(records)%progressEvery == 0 {
					im.lg.Info("Decode progress", zap.String("file", path), zap.Int("records", len(records)))
				}
				return nil
			}); err != nil {
				return err
			}
			im.lg.Info("Decoded file", zap.String("file", path), zap.Int("records", len(records)))
			out[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// knownSKUs returns which of skus already exist. A bloom filter built from
// the catalog rules out most new SKUs without a query; its positives are
// confirmed in one round trip.
func (im *Importer) knownSKUs(ctx context.Context, skus []string) (map[string]struct{}, int, error) {
	existing, err := im.store.SKUs(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "load catalog skus")
	}

	filter := bloom.NewWithEstimates(uint(max(len(existing), minBloomItems)), bloomFPR)
	for _, sku := range existing {
		filter.AddString(sku)
	}

	var candidates []string
	for _, sku := range skus {
		if filter.TestString(sku) {
			candidates = append(candidates, sku)
		}
	}

	known := make(map[string]struct{}, len(candidates))
	if len(candidates) == 0 {
		return known, 0, nil
	}
	confirmed, err := im.store.ExistingSKUs(ctx, candidates)
	if err != nil {
		return nil, 0, errors.Wrap(err, "confirm skus")
	}
	for _, sku := range confirmed {
		known[sku] = struct{}{}
	}
	return known, len(candidates), nil
}
