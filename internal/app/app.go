package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"aadhaar_pulse/internal/config"
	"aadhaar_pulse/internal/events"
	"aadhaar_pulse/internal/httpapi"
	"aadhaar_pulse/internal/jobs"
	"aadhaar_pulse/internal/metrics"
	"aadhaar_pulse/internal/notify"
	"aadhaar_pulse/internal/pipeline"
	"aadhaar_pulse/internal/store"
	"aadhaar_pulse/internal/watch"
)

const shutdownTimeout = 10 * time.Second

// App wires the data plane components together.
type App struct {
	cfg      config.Config
	store    *store.Store
	runner   *jobs.Runner
	watcher  *watch.Watcher
	latest   *pipeline.Latest
	metrics  *metrics.Metrics
	bus      *events.Bus
	notifier *notify.GroupMe
	trigger  *Trigger
	mux      *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := recoverInterrupted(st); err != nil {
		st.Close()
		return nil, err
	}
	m := metrics.New()
	bus := events.NewBus()
	latest := pipeline.NewLatest()
	rc := pipeline.NewRecomputer(cfg, st, latest, m, bus)
	runner := jobs.NewRunner(cfg, st, pipeline.BuildRegistry(rc), m)
	trigger := NewTrigger(cfg.DataDir, runner, cfg.RecomputePerMinute, m)
	watcher := watch.New(cfg, []string{pipeline.EnrolmentDir, pipeline.DemographicDir, pipeline.BiometricDir}, func(ctx context.Context, reason string) {
		if _, err := trigger.RecomputeWait(ctx, reason); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("app: watch recompute: %v", err)
		}
	})
	mux := http.NewServeMux()
	httpapi.NewRouter(cfg, st, runner, latest, trigger, m.Handler()).Register(mux)
	return &App{
		cfg:      cfg,
		store:    st,
		runner:   runner,
		watcher:  watcher,
		latest:   latest,
		metrics:  m,
		bus:      bus,
		notifier: notify.NewGroupMe(cfg),
		trigger:  trigger,
		mux:      mux,
	}, nil
}

// Run starts workers, watcher, notifier and HTTP server, and schedules an
// initial recompute. It returns when ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	g, ctx := errgroup.WithContext(ctx)

	a.runner.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		a.runner.Stop()
		return nil
	})

	if err := a.watcher.Start(ctx); err != nil {
		log.Printf("app: watcher: %v (continuing without it)", err)
	}

	sub := a.bus.Subscribe()
	g.Go(func() error {
		a.forwardAlerts(ctx, sub)
		return nil
	})

	// the snapshot lives in memory only, so every boot recomputes
	if _, err := a.trigger.Recompute(ctx, "startup", true); err != nil {
		log.Printf("app: startup recompute: %v", err)
	}

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		log.Printf("http listening on %s", a.cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// recoverInterrupted releases jobs and runs left open by a previous process.
func recoverInterrupted(st *store.Store) error {
	ctx := context.Background()
	now := config.Now()
	jobsCancelled, err := st.CancelStaleJobs(ctx, "interrupted by restart", now)
	if err != nil {
		return err
	}
	runsFailed, err := st.FailStaleRuns(ctx, "interrupted by restart", now)
	if err != nil {
		return err
	}
	if jobsCancelled > 0 || runsFailed > 0 {
		log.Printf("app: recovered jobs_cancelled=%d runs_failed=%d", jobsCancelled, runsFailed)
	}
	return nil
}

func (a *App) forwardAlerts(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if ev.Kind != events.RunSucceeded {
				continue
			}
			sent, err := a.notifier.NotifyAnomalies(ctx, ev.Month, ev.Anomalies)
			switch {
			case err != nil:
				a.metrics.Notified("error")
				log.Printf("notify: run=%s: %v", ev.RunID, err)
			case sent:
				a.metrics.Notified("sent")
				log.Printf("notify: run=%s month=%s sent", ev.RunID, ev.Month)
			case a.notifier.Enabled():
				a.metrics.Notified("skipped")
			}
		}
	}
}

func (a *App) Latest() *pipeline.Latest { return a.latest }
func (a *App) Store() *store.Store       { return a.store }
func (a *App) Mux() *http.ServeMux       { return a.mux }
