package worker

import (
	"context"
	"sync"
	"time"

	"cardpricer/worker/internal/ingest"
	"cardpricer/worker/logger"

	"github.com/robfig/cron/v3"
)

// Merger runs one full ingestion pass
type Merger interface {
	DownloadAndMerge(ctx context.Context) (*ingest.Summary, error)
}

// CrossRefSyncer refreshes the cross-reference collection
type CrossRefSyncer interface {
	SyncAll(ctx context.Context) (int, error)
}

// Worker schedules the daily ingestion run. A single-flight lock guards
// against overlapping fires: when a run is still in progress the next
// trigger is skipped, and the schedule itself is the retry mechanism.
type Worker struct {
	ctx      context.Context
	merger   Merger
	syncer   CrossRefSyncer // optional
	schedule string
	cron     *cron.Cron
	running  sync.Mutex
	log      *logger.Logger
}

// NewWorker creates a worker. syncer may be nil when no cross-reference
// credentials are configured.
func NewWorker(ctx context.Context, merger Merger, syncer CrossRefSyncer, schedule string) *Worker {
	return &Worker{
		ctx:      ctx,
		merger:   merger,
		syncer:   syncer,
		schedule: schedule,
		log:      logger.ForWorker(),
	}
}

// Start registers the schedule and starts the cron loop
func (w *Worker) Start() error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.schedule, w.RunOnce); err != nil {
		return err
	}
	w.cron.Start()
	w.log.Info().Str("schedule", w.schedule).Msg("Ingestion schedule started")
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish
func (w *Worker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.running.Lock()
	w.running.Unlock()
	w.log.Info().Msg("Ingestion schedule stopped")
}

// RunOnce executes one ingestion run, refreshing the cross-reference data
// first when a syncer is configured. Safe to call directly for on-demand
// runs; overlapping calls are skipped.
func (w *Worker) RunOnce() {
	if !w.running.TryLock() {
		w.log.Warn().Msg("Previous ingestion run still in progress, skipping trigger")
		return
	}
	defer w.running.Unlock()

	start := time.Now()

	if w.syncer != nil {
		if count, err := w.syncer.SyncAll(w.ctx); err != nil {
			w.log.Warn().Err(err).Msg("Cross-reference sync failed, merging with existing data")
		} else {
			w.log.Info().Int("blueprints", count).Msg("Cross-reference data refreshed")
		}
	}

	summary, err := w.merger.DownloadAndMerge(w.ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Ingestion run failed, next scheduled run is the recovery")
		return
	}

	w.log.Info().
		Int("products", summary.Products).
		Int("prices", summary.Prices).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled ingestion run complete")
}
