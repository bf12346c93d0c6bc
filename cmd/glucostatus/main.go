// Package main is the entry point for the glucostatus CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/jwulff/glucostatus/internal/bloodsugar"
	"github.com/jwulff/glucostatus/internal/glucose"
	"github.com/jwulff/glucostatus/internal/source"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool
	dbPath     string
	settings   source.Settings

	log  *logrus.Logger
	calc *glucose.Calculator
}

func main() {
	a := &app{}
	root := a.rootCommand()

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "glucostatus",
		Short: "Derive a glucose status from recent CGM readings",
		Long: `glucostatus reads recent CGM readings from Dexcom Share or Nightscout and
derives a glucose status: current level, short and long deltas, a stable-band
average, a supersmoothed level and rate, and a meal-detection score.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML file with calculator tunables")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&a.logJSON, "log-json", false, "log as JSON")
	flags.StringVar(&a.dbPath, "db", "glucostatus.db", "SQLite database for stored readings")
	flags.StringVar(&a.settings.Kind, "source", "", "reading source: dexcom or nightscout (default: whichever is configured)")
	flags.BoolVar(&a.settings.DexcomOUS, "dexcom-ous", false, "use the Dexcom Share server for accounts outside the US")

	root.AddCommand(
		a.statusCommand(),
		a.watchCommand(),
		a.replayCommand(),
		a.importCommand(),
	)
	return root
}

func (a *app) setup(logOut io.Writer) error {
	log, err := newLogger(logOut, a.logLevel, a.logJSON)
	if err != nil {
		return err
	}
	a.log = log

	cfg, err := glucose.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.calc, err = glucose.NewCalculator(cfg, log)
	if err != nil {
		return err
	}
	a.settings = a.settings.FromEnv()
	return nil
}

func newLogger(out io.Writer, level string, asJSON bool) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)
	if asJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// storeKey names the source readings are stored under.
func (a *app) storeKey() string {
	if a.settings.Kind != "" {
		return a.settings.Kind
	}
	if src, err := source.New(a.settings); err == nil {
		return src.Name()
	}
	return source.KindDexcom
}

func (a *app) statusCommand() *cobra.Command {
	var allowStale bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch recent readings once and print the status",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source.New(a.settings)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			readings, err := src.Readings(ctx, source.DefaultLookback)
			if err != nil {
				return fmt.Errorf("failed to fetch readings from %s: %w", src.Name(), err)
			}

			now := time.Now()
			status, err := a.calc.Calculate(readings, now, allowStale)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status, now)
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowStale, "allow-stale", false, "compute even when the newest reading is stale")
	return cmd
}

// printStatus writes the display summary followed by the full status line.
func printStatus(w io.Writer, status *glucose.Status, now time.Time) {
	s := bloodsugar.Summarize(status, now)

	fmt.Fprintf(w, "%.0f mg/dL (%.1f mmol/L) %s %+.2f  [%s]\n",
		s.Glucose, s.GlucoseMmol, s.TrendArrow, s.Delta, s.RangeStatus)
	fmt.Fprintf(w, "  at %s", s.Timestamp.Local().Format("15:04"))
	if s.IsStale {
		fmt.Fprintf(w, " (stale, %s ago)", now.Sub(s.Timestamp).Round(time.Minute))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  meal score %.2f", s.MealScore)
	if s.Degraded {
		fmt.Fprint(w, " (insufficient smoothing data)")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  "+status.String())
}
