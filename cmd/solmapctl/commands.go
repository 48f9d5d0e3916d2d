package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/approach"
	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/sim"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
	"github.com/ChenXin-2009/solmap-sub004/internal/transform"
	"github.com/soypat/geometry/md3"
	"github.com/spf13/cobra"
)

// Command-line flags
var (
	atJD       float64
	atTime     string
	equatorial bool

	trailDays  float64
	trailStep  float64
	trailSpan  float64
	trailLimit int

	apBodies  string
	apHorizon float64
	apStep    float64
	apMax     int
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Print heliocentric positions of every catalog body",
	Args:  cobra.NoArgs,
	RunE:  runPositions,
}

var trailCmd = &cobra.Command{
	Use:   "trail <body>",
	Short: "Simulate forward and print the recorded trail of one body",
	Long: `
Step the simulation from the start instant by --step days until --days have
elapsed, recording trails exactly as the server does, then print the trail
of the named body filtered to its display window (or --span days).

Examples:
  solmapctl trail Mars --time 2003-01-01T00:00:00Z --days 365 --step 5
  solmapctl trail Mercury --days 88 --step 0.5 --span 88
`,
	Args: cobra.ExactArgs(1),
	RunE: runTrail,
}

var approachCmd = &cobra.Command{
	Use:   "approach <target>",
	Short: "Search for close approaches to a target body",
	Long: `
Scan the horizon at --step day resolution for local minima of the distance
between the target and each other body, then refine every minimum.

Examples:
  solmapctl approach Earth --bodies Mars --jd 2452000 --horizon 1000
  solmapctl approach Earth --horizon 3650 --step 2 --max 5
`,
	Args: cobra.ExactArgs(1),
	RunE: runApproach,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the loaded catalog as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := catalog.Marshal(loadCatalog(newLogger()).Get().Bodies)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{positionsCmd, trailCmd, approachCmd} {
		c.Flags().Float64Var(&atJD, "jd", 0, "start instant as a Julian Day")
		c.Flags().StringVar(&atTime, "time", "", "start instant as RFC 3339 (default: now)")
	}
	positionsCmd.Flags().BoolVar(&equatorial, "equatorial", false, "print equatorial J2000 instead of ecliptic J2000")

	trailCmd.Flags().Float64Var(&trailDays, "days", 90, "simulated days to run")
	trailCmd.Flags().Float64Var(&trailStep, "step", 1, "simulated days per tick")
	trailCmd.Flags().Float64Var(&trailSpan, "span", 0, "display window in days (default: a third of the period, 30-365)")
	trailCmd.Flags().IntVar(&trailLimit, "max-points", trail.DefaultMaxPoints, "stored points per trail")

	approachCmd.Flags().StringVar(&apBodies, "bodies", "", "comma-separated bodies to check (default: all others)")
	approachCmd.Flags().Float64Var(&apHorizon, "horizon", 365, "search horizon in days")
	approachCmd.Flags().Float64Var(&apStep, "step", 1, "coarse scan step in days")
	approachCmd.Flags().IntVar(&apMax, "max", 10, "maximum events per body")
}

func runPositions(cmd *cobra.Command, args []string) error {
	jd, err := resolveInstant(atJD, atTime)
	if err != nil {
		return err
	}
	logger := newLogger()
	s := sim.New(loadCatalog(logger), trail.NewManager(trail.DefaultConfig(), logger), sim.Config{StartJD: jd}, logger)

	f, err := s.PositionsAt(cmd.Context(), jd)
	if err != nil {
		return err
	}

	frame := "ecliptic J2000"
	if equatorial {
		frame = "equatorial J2000"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "JD %.5f  %s  (%s, AU)\n\n", f.JulianDay, f.Time.Format(time.RFC3339), frame)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BODY\tX\tY\tZ\tLON°\tLAT°\tR\t")
	for _, b := range f.Bodies {
		v := md3.Vec{X: b.X, Y: b.Y, Z: b.Z}
		if equatorial {
			v = transform.EclipticToEquatorial(v)
		}
		lon, lat, r := transform.Spherical(v)
		name := b.Name
		if b.Degenerate {
			name += " (degenerate)"
		}
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.6f\t%.3f\t%.3f\t%.6f\t\n", name, v.X, v.Y, v.Z, lon, lat, r)
	}
	return tw.Flush()
}

func runTrail(cmd *cobra.Command, args []string) error {
	if !(trailDays > 0) || !(trailStep > 0) {
		return fmt.Errorf("--days and --step must be positive")
	}
	if n := trailDays / trailStep; n > 1e6 {
		return fmt.Errorf("%.0f ticks requested, limit 1000000", n)
	}
	jd, err := resolveInstant(atJD, atTime)
	if err != nil {
		return err
	}

	logger := newLogger()
	store := loadCatalog(logger)
	if _, ok := store.Get().Find(args[0]); !ok {
		return fmt.Errorf("unknown body %q", args[0])
	}

	cfg := trail.DefaultConfig()
	cfg.MaxPoints = trailLimit
	cfg.TimeSpan = trail.MaxTimeSpan
	trails := trail.NewManager(cfg, logger)
	s := sim.New(store, trails, sim.Config{StartJD: jd, DaysPerTick: trailStep}, logger)

	ctx := cmd.Context()
	if _, err := s.Step(ctx, jd); err != nil {
		return err
	}
	end := jd + trailDays
	for s.Clock()+trailStep <= end+1e-9 {
		if _, err := s.Advance(ctx); err != nil {
			return err
		}
	}

	t, ok := trails.TrailWithin(args[0], s.Clock(), trailSpan)
	if !ok {
		return fmt.Errorf("no trail recorded for %q", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d points, period %.2f days\n\n", t.Name, len(t.Points), t.OrbitalPeriod)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "JD\tDATE\tX\tY\tZ\t")
	for _, p := range t.Points {
		fmt.Fprintf(tw, "%.5f\t%s\t%.6f\t%.6f\t%.6f\t\n",
			p.JulianDay, transform.Time(p.JulianDay).Format("2006-01-02"), p.X, p.Y, p.Z)
	}
	return tw.Flush()
}

func runApproach(cmd *cobra.Command, args []string) error {
	jd, err := resolveInstant(atJD, atTime)
	if err != nil {
		return err
	}
	ds := loadCatalog(newLogger()).Get()

	target, ok := ds.Find(args[0])
	if !ok {
		return fmt.Errorf("unknown target %q", args[0])
	}
	req := approach.Request{
		Target:      target,
		StartJD:     jd,
		HorizonDays: apHorizon,
		StepDays:    apStep,
		MaxEvents:   apMax,
	}
	if apBodies != "" {
		for _, name := range strings.Split(apBodies, ",") {
			e, ok := ds.Find(strings.TrimSpace(name))
			if !ok {
				return fmt.Errorf("unknown body %q", name)
			}
			req.Others = append(req.Others, e)
		}
	} else {
		for _, e := range ds.Bodies {
			if e.Name != target.Name {
				req.Others = append(req.Others, e)
			}
		}
	}
	// No sample budget offline; only shape checks.
	if err := req.Validate(0); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	start := time.Now()
	results := approach.Predict(ctx, req)

	out := cmd.OutOrStdout()
	total := 0
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(out, "%s: ERROR %s\n", r.Body, r.Error)
			continue
		}
		fmt.Fprintf(out, "%s: %d approaches\n", r.Body, len(r.Events))
		total += len(r.Events)
		for _, e := range r.Events {
			fmt.Fprintf(out, "  %s  JD %.4f  %.6f AU\n", e.Time.Format("2006-01-02 15:04"), e.JulianDay, e.DistanceAU)
		}
	}
	fmt.Fprintf(out, "\nTotal approaches found: %d (%.0f samples, %s)\n", total, req.Samples(), time.Since(start).Round(time.Millisecond))
	if err := ctx.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: search stopped early:", err)
	}
	return nil
}
