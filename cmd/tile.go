package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/geojson2mvt-go/internal/config"
	"github.com/wegman-software/geojson2mvt-go/internal/logger"
	"github.com/wegman-software/geojson2mvt-go/internal/source"
	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

var (
	tileBBox    string
	tileMinZoom uint32
	tileMaxZoom uint32
	tileOutDir  string
)

var tileCmd = &cobra.Command{
	Use:   "tile <load-request.yaml>",
	Short: "Render a source to a directory of vector tiles",
	Long: `Load a source from a load request file and write every non-empty tile
covering a bounding box to <out>/{z}/{x}/{y}.mvt.

Tiles are extracted in parallel using the configured number of workers.`,
	Args: cobra.ExactArgs(1),
	Run:  runTile,
}

func init() {
	rootCmd.AddCommand(tileCmd)

	tileCmd.Flags().StringVarP(&tileBBox, "bbox", "b", "-180,-85.0511287798,180,85.0511287798", "Bounding box: minlon,minlat,maxlon,maxlat")
	tileCmd.Flags().Uint32Var(&tileMinZoom, "min-zoom", 0, "Minimum zoom level")
	tileCmd.Flags().Uint32Var(&tileMaxZoom, "max-zoom", 5, "Maximum zoom level")
	tileCmd.Flags().StringVarP(&tileOutDir, "output-dir", "o", "tiles", "Directory for rendered tiles")
}

func runTile(cmd *cobra.Command, args []string) {
	log := logger.Get()

	bbox, err := vtile.ParseBBox(tileBBox)
	if err != nil {
		exitWithError("invalid bbox", err)
	}
	if tileMinZoom > tileMaxZoom || tileMaxZoom > vtile.MaxZoom {
		exitWithError(fmt.Sprintf("invalid zoom range %d-%d", tileMinZoom, tileMaxZoom), nil)
	}

	params, err := config.LoadRequest(args[0])
	if err != nil {
		exitWithError("failed to read load request", err)
	}

	ctx := context.Background()
	src, router := loadSource(ctx, params)
	defer router.Close()

	tiles := vtile.TilesInBBox(bbox, tileMinZoom, tileMaxZoom)
	log.Info("Rendering tiles",
		zap.String("source", params.Source),
		zap.Int("tiles", len(tiles)),
		zap.Uint32("min_zoom", tileMinZoom),
		zap.Uint32("max_zoom", tileMaxZoom),
		zap.Int("workers", cfg.Workers))

	start := time.Now()
	var written, empty int64

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, id := range tiles {
		id := id
		g.Go(func() error {
			res, err := src.LoadTile(source.TileParams{TileID: id})
			if err != nil {
				return fmt.Errorf("failed to extract tile %s: %w", id, err)
			}
			if res == nil {
				atomic.AddInt64(&empty, 1)
				return nil
			}
			if err := writeTile(tileOutDir, id, res.RawData); err != nil {
				return err
			}
			atomic.AddInt64(&written, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		exitWithError("tile rendering failed", err)
	}

	log.Info("Tiles rendered",
		zap.String("output_dir", tileOutDir),
		zap.Int64("written", written),
		zap.Int64("empty", empty),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
}

func writeTile(dir string, id vtile.TileID, data []byte) error {
	path := filepath.Join(dir, fmt.Sprint(id.Z), fmt.Sprint(id.X), fmt.Sprintf("%d.mvt", id.Y))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tile directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tile %s: %w", id, err)
	}
	return nil
}
