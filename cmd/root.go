package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/config"
	"github.com/wegman-software/geojson2mvt-go/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	configPath      string
	verbose         bool
	logFile         string
	metricsInterval time.Duration
	workers         int
)

var rootCmd = &cobra.Command{
	Use:   "geojson2mvt",
	Short: "GeoJSON source worker serving Mapbox Vector Tiles",
	Long: `geojson2mvt loads GeoJSON sources and serves them as Mapbox Vector Tiles.

Features:
  - Fetches sources over HTTP, from local files or from PostGIS queries
  - Incremental updates through promoted feature ids and diffs
  - Point clustering with aggregated cluster properties
  - Style expression and Lua filters
  - Last-request-wins loading with abandoned load reporting`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			loaded, err := config.LoadFile(configPath)
			if err != nil {
				exitWithError("failed to load config", err)
			}
			cfg = loaded
		}

		// Explicit flags override the config file
		flags := cmd.Flags()
		if flags.Changed("verbose") {
			cfg.Debug = verbose
		}
		if flags.Changed("log-file") {
			cfg.LogFile = logFile
		}
		if flags.Changed("metrics-interval") {
			cfg.MetricsInterval = metricsInterval
		}
		if flags.Changed("workers") {
			cfg.Workers = workers
		}

		logger.Init(cfg.LoggerOptions())

		if err := cfg.Validate(); err != nil {
			exitWithError("invalid configuration", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m)")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
