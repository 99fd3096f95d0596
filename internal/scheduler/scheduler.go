package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elevateforhumanity/cima-importer/internal/models"
)

// Importer is the slice of the service the auto-import task drives. The
// scheduler is a plain caller of the same interface the HTTP surface uses,
// so the idempotency guarantees apply uniformly.
type Importer interface {
	Import(ctx context.Context, payload []byte) (*models.ImportResponse, error)
}

// BatchFiles is the object-storage surface for inbound batch discovery.
type BatchFiles interface {
	ListInbound(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	Archive(ctx context.Context, key string) error
}

// Maintenance covers the housekeeping operations of the store.
type Maintenance interface {
	PurgeExpiredSignTokens(ctx context.Context, now time.Time) (int64, error)
	MarkStalePendingEntries(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scheduler runs the nightly maintenance tasks on a fixed period:
// auto-import of unprocessed batch files, expired-token purge and
// stale-entry marking. Each task is failure-isolated from the others.
type Scheduler struct {
	importer    Importer
	files       BatchFiles // nil disables auto-import
	maintenance Maintenance
	logger      *zap.SugaredLogger

	Interval  time.Duration
	StaleAge  time.Duration
	taskLimit time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func New(importer Importer, files BatchFiles, maintenance Maintenance, logger *zap.SugaredLogger, interval time.Duration, stalePendingDays int) *Scheduler {
	return &Scheduler{
		importer:    importer,
		files:       files,
		maintenance: maintenance,
		logger:      logger,
		Interval:    interval,
		StaleAge:    time.Duration(stalePendingDays) * 24 * time.Hour,
		taskLimit:   10 * time.Minute,
	}
}

// Start begins the periodic run loop. A stopped scheduler can be started
// again; each cycle gets its own ticker and stop channel.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.logger.Infow("scheduler started", "interval", s.Interval)
}

// Stop halts the run loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce executes the three maintenance tasks. A failing task is logged
// and never blocks the remaining tasks.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.logger.Info("running nightly tasks")

	if err := s.autoImport(ctx); err != nil {
		s.logger.Errorw("auto-import task failed", "error", err)
	}
	if err := s.purgeTokens(ctx); err != nil {
		s.logger.Errorw("token purge task failed", "error", err)
	}
	if err := s.markStale(ctx); err != nil {
		s.logger.Errorw("stale-entry marking task failed", "error", err)
	}
}

// autoImport discovers unprocessed batch files, imports each through the
// regular importer and archives the processed files. A file whose batch
// fails to parse stays in place for operator attention.
func (s *Scheduler) autoImport(ctx context.Context) error {
	if s.files == nil {
		s.logger.Debug("object store not configured, skipping auto-import")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.taskLimit)
	defer cancel()

	keys, err := s.files.ListInbound(ctx)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for _, key := range keys {
		payload, err := s.files.Fetch(ctx, key)
		if err != nil {
			s.logger.Errorw("failed to fetch batch file", "key", key, "error", err)
			failed++
			continue
		}

		result, err := s.importer.Import(ctx, payload)
		if err != nil {
			s.logger.Errorw("failed to import batch file", "key", key, "error", err)
			failed++
			continue
		}

		if err := s.files.Archive(ctx, key); err != nil {
			s.logger.Errorw("failed to archive batch file", "key", key, "error", err)
			failed++
			continue
		}

		processed++
		s.logger.Infow("batch file processed",
			"key", key,
			"batch_id", result.BatchID,
			"imported", result.Imported,
			"minutes_added", result.MinutesAdded)
	}

	s.logger.Infow("auto-import complete", "processed", processed, "failed", failed)
	return nil
}

func (s *Scheduler) purgeTokens(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.taskLimit)
	defer cancel()

	purged, err := s.maintenance.PurgeExpiredSignTokens(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.logger.Infow("purged expired sign tokens", "count", purged)
	return nil
}

func (s *Scheduler) markStale(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.taskLimit)
	defer cancel()

	marked, err := s.maintenance.MarkStalePendingEntries(ctx, time.Now().UTC().Add(-s.StaleAge))
	if err != nil {
		return err
	}
	s.logger.Infow("marked stale unsigned entries", "count", marked)
	return nil
}
