package main

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/catalog"
	"github.com/xenking/stockroom/internal/repository"
)

func seedCmd(g *globals) *cobra.Command {
	var productsFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert products from a JSON seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := catalog.ReadSeed(productsFile)
			if err != nil {
				return err
			}
			pool, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			im := catalog.NewImporter(repository.NewCatalogRepository(pool), g.lg)
			n, err := im.Seed(cmd.Context(), records)
			if err != nil {
				return errors.Wrapf(err, "seed record %d", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&productsFile, "products-file", "db/seed/products.json", "Path to the products JSON file")
	return cmd
}

func importCmd(g *globals) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import gzipped JSONL product feeds",
		Long: `Import decodes every file concurrently. New SKUs are inserted with COPY;
quantities listed for SKUs already in the catalog are added to their stock.`,
		Example: `  stockroomctl import --file feed1.jsonl.gz --file feed2.jsonl.gz`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			im := catalog.NewImporter(repository.NewCatalogRepository(pool), g.lg)
			stats, err := im.Run(cmd.Context(), files)
			if err != nil {
				return err
			}
			g.lg.Debug("Import stats", zap.Any("stats", stats))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&files, "file", nil, "Gzipped JSONL file to import (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
