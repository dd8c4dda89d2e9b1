package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/metrics"
	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/internal/notify"
	"github.com/smartdevs17/nft-trade-watcher/internal/storage"
	"github.com/smartdevs17/nft-trade-watcher/internal/tracker"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// Resolver maps a (blockchain, marketplace) pair to a tracker variant.
// *tracker.Registry implements it; tests inject fakes.
type Resolver interface {
	Lookup(blockchain, marketplace string) (tracker.Tracker, error)
}

// Config holds poll intervals per frequency tier.
type Config struct {
	InstantInterval time.Duration `json:"instant_interval"`
	TenMinInterval  time.Duration `json:"ten_min_interval"`
	HourlyInterval  time.Duration `json:"hourly_interval"`
}

// DefaultConfig returns the stock 30s/10min/1h tier intervals.
func DefaultConfig() *Config {
	return &Config{
		InstantInterval: 30 * time.Second,
		TenMinInterval:  10 * time.Minute,
		HourlyInterval:  time.Hour,
	}
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	Tier            models.UpdateFrequency
	Collections     int
	NewTransactions int
	Duplicates      int
	AlertsSent      int
	Errors          int
}

// Engine owns the polling loops. One goroutine runs per tier; each
// cycle polls only the collections whose most-frequent subscriber
// selected that tier, so a collection is never polled by two tiers.
type Engine struct {
	store      storage.Storage
	resolver   Resolver
	dispatcher *notify.Dispatcher
	config     *Config
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now is swapped out by tests.
	now func() time.Time
}

// NewEngine creates a polling engine.
func NewEngine(store storage.Storage, resolver Resolver, dispatcher *notify.Dispatcher,
	config *Config, m *metrics.Metrics) *Engine {

	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		store:      store,
		resolver:   resolver,
		dispatcher: dispatcher,
		config:     config,
		metrics:    m,
		logger:     utils.GetLogger(),
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start launches one polling loop per tier.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Poll engine already running", "")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.stopOnce = sync.Once{}

	tiers := []struct {
		tier     models.UpdateFrequency
		interval time.Duration
	}{
		{models.FrequencyInstant, e.config.InstantInterval},
		{models.Frequency10Min, e.config.TenMinInterval},
		{models.FrequencyHourly, e.config.HourlyInterval},
	}

	for _, t := range tiers {
		e.wg.Add(1)
		go e.pollLoop(ctx, t.tier, t.interval)
	}

	e.logger.WithFields(logrus.Fields{
		"instant": e.config.InstantInterval,
		"10min":   e.config.TenMinInterval,
		"hourly":  e.config.HourlyInterval,
	}).Info("Poll engine started")
	return nil
}

// Stop shuts the polling loops down and waits for them to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	e.logger.Info("Poll engine stopped")
	return nil
}

// IsRunning reports whether the engine is started.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) pollLoop(ctx context.Context, tier models.UpdateFrequency, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			stats, err := e.RunCycle(ctx, tier)
			if err != nil {
				e.logger.WithField("tier", tier).Error("Poll cycle failed: ", err)
				continue
			}
			if stats.NewTransactions > 0 || stats.Errors > 0 {
				e.logger.WithFields(logrus.Fields{
					"tier":        tier,
					"collections": stats.Collections,
					"new":         stats.NewTransactions,
					"duplicates":  stats.Duplicates,
					"alerts":      stats.AlertsSent,
					"errors":      stats.Errors,
				}).Info("Poll cycle completed")
			}
		}
	}
}

// RunCycle polls every collection assigned to the tier once. A failing
// collection is logged and skipped; it never aborts the rest of the
// cycle.
func (e *Engine) RunCycle(ctx context.Context, tier models.UpdateFrequency) (*CycleStats, error) {
	started := e.now()
	stats := &CycleStats{Tier: tier}

	collections, err := e.store.ListTrackedCollections(ctx)
	if err != nil {
		return nil, err
	}

	for _, collection := range collections {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		trackers, err := e.store.ListCollectionTrackers(ctx, collection.Blockchain, collection.Address)
		if err != nil {
			e.logger.WithField("collection", collection.Address).Error("Failed to load subscribers: ", err)
			stats.Errors++
			continue
		}
		if len(trackers) == 0 {
			continue
		}
		if effectiveTier(trackers) != tier {
			continue
		}

		stats.Collections++
		if err := e.pollCollection(ctx, collection, trackers, stats); err != nil {
			e.logger.WithFields(logrus.Fields{
				"blockchain": collection.Blockchain,
				"collection": collection.Address,
			}).Error("Failed to poll collection: ", err)
			stats.Errors++
			if e.metrics != nil {
				e.metrics.PollErrorsTotal.WithLabelValues(string(tier)).Inc()
			}
		}
	}

	if e.metrics != nil {
		e.metrics.ObservePollCycle(string(tier), stats.Collections, e.now().Sub(started))
	}
	return stats, nil
}

func (e *Engine) pollCollection(ctx context.Context, collection *models.TrackedCollection,
	trackers []models.CollectionTracker, stats *CycleStats) error {

	variant, err := e.resolver.Lookup(collection.Blockchain, collection.Marketplace)
	if err != nil {
		// Unsupported pairs should not exist in the store, but a skip
		// must not poison the cycle.
		e.logger.WithFields(logrus.Fields{
			"blockchain":  collection.Blockchain,
			"marketplace": collection.Marketplace,
		}).Warn("No tracker for stored collection, skipping")
		return nil
	}

	checkpoint, err := e.store.GetCheckpoint(ctx, collection.Blockchain, collection.Address)
	if err != nil {
		return err
	}

	transactions, err := variant.RecentTransactions(ctx, collection.Address, checkpoint)
	if err != nil {
		// The checkpoint stays put so the failed window is retried next
		// cycle; dedup absorbs anything fetched twice.
		return err
	}

	if cpErr := e.store.SetCheckpoint(ctx, collection.Blockchain, collection.Address, e.now()); cpErr != nil {
		e.logger.WithField("collection", collection.Address).Error("Failed to update checkpoint: ", cpErr)
	}
	if len(transactions) == 0 {
		return nil
	}

	info := e.collectionInfo(ctx, variant, collection)

	for i := range transactions {
		tx := &transactions[i]

		if _, err := e.store.RecordTransaction(ctx, tx); err != nil {
			if errors.Is(err, storage.ErrAlreadyRecorded) {
				// Seen in an earlier poll; dedup, not an error.
				stats.Duplicates++
				if e.metrics != nil {
					e.metrics.DuplicateTransactions.Inc()
				}
				continue
			}
			e.logger.WithField("tx", tx.Hash).Error("Failed to record transaction: ", err)
			stats.Errors++
			continue
		}

		stats.NewTransactions++
		if e.metrics != nil {
			e.metrics.TransactionsRecorded.Inc()
		}

		sent := e.dispatcher.Fanout(ctx, trackers, tx, info)
		stats.AlertsSent += sent
		if e.metrics != nil {
			e.metrics.AlertsSentTotal.Add(float64(sent))
		}
	}

	return nil
}

// collectionInfo fetches display metadata for alerts, falling back to
// the stored name when the marketplace call fails.
func (e *Engine) collectionInfo(ctx context.Context, variant tracker.Tracker,
	collection *models.TrackedCollection) *models.CollectionInfo {

	info, err := variant.CollectionInfo(ctx, collection.Address)
	if err == nil && info != nil {
		return info
	}
	if collection.Name != "" {
		return &models.CollectionInfo{Name: collection.Name}
	}
	return nil
}

// effectiveTier is the most frequent tier among a collection's
// subscribers. It decides which polling loop owns the collection.
func effectiveTier(trackers []models.CollectionTracker) models.UpdateFrequency {
	best := models.FrequencyHourly
	for _, t := range trackers {
		if t.Settings.UpdateFrequency.Rank() < best.Rank() {
			best = t.Settings.UpdateFrequency
		}
	}
	return best
}
