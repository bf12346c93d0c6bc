package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwulff/glucostatus/internal/feed"
	"github.com/jwulff/glucostatus/internal/glucose"
	"github.com/jwulff/glucostatus/internal/source"
	"github.com/jwulff/glucostatus/internal/storage"
	"github.com/jwulff/glucostatus/internal/storage/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// retention is how long watch keeps stored readings.
const retention = 24 * time.Hour

func (a *app) watchCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Fetch, store and compute the status every minute",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source.New(a.settings)
			if err != nil {
				return err
			}
			store, err := sqlite.NewFileStore(a.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := &watcher{
				src:   src,
				store: store,
				calc:  a.calc,
				log:   a.log.WithField("source", src.Name()),
			}

			if listen != "" {
				w.hub = feed.NewHub(a.log.WithField("component", "feed"))
				go w.hub.Run(ctx)
				srv := &http.Server{Addr: listen, Handler: w.hub.Handler(), ReadHeaderTimeout: 10 * time.Second}
				go func() {
					a.log.WithField("addr", listen).Info("serving status feed")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.WithError(err).Error("status feed stopped")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			a.log.Info("watching, updates every minute")
			w.run(ctx)
			a.log.Info("stopping")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "serve the status feed on this address, e.g. :8080")
	return cmd
}

// watcher runs one fetch-store-compute cycle per tick.
type watcher struct {
	src   source.Source
	store storage.Store
	calc  *glucose.Calculator
	hub   *feed.Hub
	log   logrus.FieldLogger
}

func (w *watcher) run(ctx context.Context) {
	w.tick(ctx, time.Now())

	ticker, ok := minuteTicker(ctx)
	if !ok {
		return
	}
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			w.tick(ctx, now)
		case <-ctx.Done():
			return
		}
	}
}

// minuteTicker waits for the start of the next minute and returns a ticker
// firing every minute from then on. It reports false if ctx ends first.
func minuteTicker(ctx context.Context) (*time.Ticker, bool) {
	now := time.Now()
	wait := now.Truncate(time.Minute).Add(time.Minute).Sub(now)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return time.NewTicker(time.Minute), true
	case <-ctx.Done():
		return nil, false
	}
}

// tick fetches new readings, then computes the status from the store so a
// failed fetch still yields a status while stored data is fresh.
func (w *watcher) tick(ctx context.Context, now time.Time) *glucose.Status {
	w.sync(ctx, now)

	if err := w.store.DeleteOldReadings(ctx, w.src.Name(), now.Add(-retention)); err != nil {
		w.log.WithError(err).Warn("failed to prune old readings")
	}

	readings, err := storage.Snapshot(ctx, w.store, w.src.Name(), now, source.DefaultLookback)
	if err != nil {
		w.log.WithError(err).Error("failed to load snapshot")
		return nil
	}

	status, err := w.calc.Calculate(readings, now, false)
	if err != nil {
		w.log.WithError(err).Warn("no status")
		return nil
	}
	w.log.WithFields(status.Fields()).Info("status")

	if w.hub != nil {
		if err := w.hub.Publish(ctx, status); err != nil {
			w.log.WithError(err).Warn("failed to publish status")
		}
	}
	return status
}

func (w *watcher) sync(ctx context.Context, now time.Time) {
	state, err := w.store.GetSourceState(ctx, w.src.Name())
	if storage.IsNotFound(err) {
		state = storage.NewSourceState(w.src.Name())
	} else if err != nil {
		w.log.WithError(err).Warn("failed to load source state")
		state = storage.NewSourceState(w.src.Name())
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	readings, err := w.src.Readings(fetchCtx, source.DefaultLookback)
	if err == nil {
		err = w.store.SaveReadings(ctx, w.src.Name(), readings)
	}

	if err != nil {
		state.RecordError(err.Error())
		w.log.WithError(err).WithField("errors", state.ErrorCount).Warn("sync failed")
	} else {
		var newest time.Time
		if len(readings) > 0 {
			newest = readings[0].Timestamp
		}
		state.RecordSuccess(now, newest)
		w.log.WithField("readings", len(readings)).Debug("synced")
	}

	if err := w.store.SaveSourceState(ctx, state); err != nil {
		w.log.WithError(err).Warn("failed to save source state")
	}
}

func (a *app) replayCommand() *cobra.Command {
	var at string
	var allowStale bool
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Compute the status from stored readings as of a past instant",
		RunE: func(cmd *cobra.Command, args []string) error {
			instant, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			store, err := sqlite.NewFileStore(a.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			status, err := replayStatus(cmd.Context(), store, a.calc, a.storeKey(), instant, allowStale)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status, instant)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instant to replay, RFC3339")
	cmd.Flags().BoolVar(&allowStale, "allow-stale", true, "compute even when the newest reading is stale")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func replayStatus(ctx context.Context, store storage.Store, calc *glucose.Calculator, key string, at time.Time, allowStale bool) (*glucose.Status, error) {
	readings, err := storage.Snapshot(ctx, store, key, at, source.DefaultLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return calc.Calculate(readings, at, allowStale)
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load readings from a JSON array into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			store, err := sqlite.NewFileStore(a.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			key := a.storeKey()
			n, err := importReadings(cmd.Context(), store, key, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d readings as %s\n", n, key)
			return nil
		},
	}
}

// importReadings stores a JSON array of {"timestamp", "value"} objects.
func importReadings(ctx context.Context, store storage.Store, key string, r io.Reader) (int, error) {
	var readings []glucose.Reading
	if err := json.NewDecoder(r).Decode(&readings); err != nil {
		return 0, fmt.Errorf("failed to parse readings: %w", err)
	}
	for i, reading := range readings {
		if reading.Timestamp.IsZero() {
			return 0, fmt.Errorf("reading %d has no timestamp", i)
		}
	}
	if err := store.SaveReadings(ctx, key, readings); err != nil {
		return 0, err
	}
	return len(readings), nil
}
