// Command solmapctl runs the solmap propagator offline: body positions at
// an instant, simulated trails and close-approach searches, printed to
// stdout without starting the server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/transform"
	"github.com/spf13/cobra"
)

var (
	catalogFile string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "solmapctl",
	Short:         "Offline solar system propagation tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "JSON body catalog (default: built-in planets)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")

	rootCmd.AddCommand(positionsCmd, trailCmd, approachCmd, catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadCatalog fills a store from --catalog, falling back to the built-in
// table when the file is missing or invalid.
func loadCatalog(logger *slog.Logger) *catalog.Store {
	store := catalog.NewStore()
	ds := catalog.NewLoader(store, nil, nil, catalogFile, logger).LoadInitial()
	if catalogFile != "" && ds.Source == "builtin" {
		fmt.Fprintf(os.Stderr, "warning: could not use %s, falling back to built-in catalog\n", catalogFile)
	}
	return store
}

// resolveInstant picks the Julian Day from --jd or --time, defaulting to now.
func resolveInstant(jd float64, ts string) (float64, error) {
	if jd != 0 {
		return jd, nil
	}
	if ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return 0, fmt.Errorf("invalid --time %q, must be RFC 3339", ts)
		}
		return transform.JulianDay(t), nil
	}
	return transform.JulianDay(time.Now()), nil
}
