package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/config"
	"github.com/wegman-software/geojson2mvt-go/internal/logger"
	"github.com/wegman-software/geojson2mvt-go/internal/source"
	"github.com/wegman-software/geojson2mvt-go/internal/transport"
)

var (
	leavesLimit  int
	leavesOffset int
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Query the clusters of a clustered source",
	Long: `Load a clustered source from a load request file and query one of its
clusters. Results are printed as JSON on stdout.`,
}

var expansionZoomCmd = &cobra.Command{
	Use:   "expansion-zoom <load-request.yaml> <cluster-id>",
	Short: "Print the zoom at which a cluster splits",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		src, id, done := clusterSource(args)
		defer done()

		zoom, err := src.ClusterExpansionZoom(id)
		if err != nil {
			exitWithError("expansion zoom query failed", err)
		}
		printJSON(map[string]int{"zoom": zoom})
	},
}

var childrenCmd = &cobra.Command{
	Use:   "children <load-request.yaml> <cluster-id>",
	Short: "Print the children of a cluster one zoom level down",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		src, id, done := clusterSource(args)
		defer done()

		features, err := src.ClusterChildren(id)
		if err != nil {
			exitWithError("children query failed", err)
		}
		printFeatures(features)
	},
}

var leavesCmd = &cobra.Command{
	Use:   "leaves <load-request.yaml> <cluster-id>",
	Short: "Print the original points of a cluster",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		src, id, done := clusterSource(args)
		defer done()

		features, err := src.ClusterLeaves(id, leavesLimit, leavesOffset)
		if err != nil {
			exitWithError("leaves query failed", err)
		}
		printFeatures(features)
	},
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	clusterCmd.AddCommand(expansionZoomCmd, childrenCmd, leavesCmd)

	leavesCmd.Flags().IntVar(&leavesLimit, "limit", 10, "Maximum number of points, 0 for all")
	leavesCmd.Flags().IntVar(&leavesOffset, "offset", 0, "Number of points to skip")
}

func clusterSource(args []string) (*source.Source, int, func()) {
	id, err := strconv.Atoi(args[1])
	if err != nil {
		exitWithError("invalid cluster id", err)
	}

	params, err := config.LoadRequest(args[0])
	if err != nil {
		exitWithError("failed to read load request", err)
	}

	src, router := loadSource(context.Background(), params)
	return src, id, func() { router.Close() }
}

// loadSource loads params into a fresh source and exits on failure.
func loadSource(ctx context.Context, params *source.LoadParams) (*source.Source, *transport.Router) {
	log := logger.Get()

	router := cfg.Transport()
	src := source.New(params.Source, source.Options{Transport: router})

	start := time.Now()
	if _, err := src.Load(ctx, *params); err != nil {
		router.Close()
		exitWithError("failed to load source", err)
	}

	info := src.Info()
	log.Info("Source loaded",
		zap.String("source", info.Name),
		zap.String("mode", info.Mode),
		zap.Int("features", info.Features),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return src, router
}

func printFeatures(features []*geojson.Feature) {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	printJSON(fc)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitWithError("failed to write output", err)
	}
}
