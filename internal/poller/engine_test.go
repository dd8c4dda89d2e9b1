package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/internal/notify"
	"github.com/smartdevs17/nft-trade-watcher/internal/storage"
	"github.com/smartdevs17/nft-trade-watcher/internal/tracker"
)

type fakeTracker struct {
	mu           sync.Mutex
	transactions []models.Transaction
	info         *models.CollectionInfo
	err          error
	sinceSeen    []time.Time
}

func (f *fakeTracker) ValidateCollection(ctx context.Context, address string) bool { return true }

func (f *fakeTracker) CollectionInfo(ctx context.Context, address string) (*models.CollectionInfo, error) {
	if f.info == nil {
		return nil, assert.AnError
	}
	return f.info, nil
}

func (f *fakeTracker) RecentTransactions(ctx context.Context, address string, since time.Time) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceSeen = append(f.sinceSeen, since)
	if f.err != nil {
		return nil, f.err
	}
	return f.transactions, nil
}

type fakeResolver struct {
	trackers map[string]tracker.Tracker
}

func (f *fakeResolver) Lookup(blockchain, marketplace string) (tracker.Tracker, error) {
	if t, ok := f.trackers[blockchain+"/"+marketplace]; ok {
		return t, nil
	}
	return nil, assert.AnError
}

// perAddressTracker routes each call to a different fake by collection
// address, letting one cycle mix healthy and failing collections.
type perAddressTracker struct {
	byAddress map[string]tracker.Tracker
}

func (f *perAddressTracker) ValidateCollection(ctx context.Context, address string) bool {
	return true
}

func (f *perAddressTracker) CollectionInfo(ctx context.Context, address string) (*models.CollectionInfo, error) {
	return f.byAddress[address].CollectionInfo(ctx, address)
}

func (f *perAddressTracker) RecentTransactions(ctx context.Context, address string, since time.Time) ([]models.Transaction, error) {
	return f.byAddress[address].RecentTransactions(ctx, address, since)
}

type fakeMessenger struct {
	mu       sync.Mutex
	messages map[int64][]string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{messages: map[int64][]string{}}
}

func (f *fakeMessenger) SendMessage(ctx context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[userID] = append(f.messages[userID], text)
	return nil
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()

	store := storage.NewSQLiteStorage(&storage.Config{
		Type:             "sqlite",
		ConnectionString: ":memory:",
	})
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, store storage.Storage, userID int64, frequency models.UpdateFrequency) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, &models.User{ID: userID, FirstName: "Test"}))
	settings := models.DefaultSettings()
	settings.UpdateFrequency = frequency
	require.NoError(t, store.SetSettings(ctx, userID, settings))
}

func seedCollection(t *testing.T, store storage.Storage, userID int64, address string) {
	t.Helper()

	require.NoError(t, store.AddCollection(context.Background(), &models.TrackedCollection{
		UserID:      userID,
		Blockchain:  "ethereum",
		Marketplace: "opensea",
		Address:     address,
		Name:        "Test Apes",
	}))
}

func sampleTransaction(hash, tokenID string) models.Transaction {
	return models.Transaction{
		Blockchain:  "ethereum",
		Marketplace: "opensea",
		Address:     "0xabc",
		TokenID:     tokenID,
		Type:        models.TransactionSale,
		Price:       1.5,
		Currency:    "ETH",
		Buyer:       "0xbuyer",
		Seller:      "0xseller",
		Timestamp:   time.Now().UTC(),
		Hash:        hash,
	}
}

func TestRunCycleRecordsAndAlerts(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyInstant)
	seedCollection(t, store, 1, "0xabc")

	ft := &fakeTracker{
		transactions: []models.Transaction{sampleTransaction("0xhash1", "42")},
		info:         &models.CollectionInfo{Name: "Test Apes"},
	}
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{"ethereum/opensea": ft}}
	messenger := newFakeMessenger()

	engine := NewEngine(store, resolver, notify.NewDispatcher(messenger), nil, nil)

	stats, err := engine.RunCycle(context.Background(), models.FrequencyInstant)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Collections)
	assert.Equal(t, 1, stats.NewTransactions)
	assert.Equal(t, 0, stats.Duplicates)
	assert.Equal(t, 1, stats.AlertsSent)
	require.Len(t, messenger.messages[1], 1)
	assert.Contains(t, messenger.messages[1][0], "Test Apes")
}

func TestRunCycleDeduplicatesAcrossCycles(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyInstant)
	seedCollection(t, store, 1, "0xabc")

	ft := &fakeTracker{
		transactions: []models.Transaction{sampleTransaction("0xhash1", "42")},
		info:         &models.CollectionInfo{Name: "Test Apes"},
	}
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{"ethereum/opensea": ft}}
	messenger := newFakeMessenger()

	engine := NewEngine(store, resolver, notify.NewDispatcher(messenger), nil, nil)

	_, err := engine.RunCycle(context.Background(), models.FrequencyInstant)
	require.NoError(t, err)

	// Second cycle sees the same transaction again; the uniqueness key
	// suppresses the repeat alert.
	stats, err := engine.RunCycle(context.Background(), models.FrequencyInstant)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.NewTransactions)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 0, stats.AlertsSent)
	assert.Len(t, messenger.messages[1], 1)
}

func TestRunCycleTierPartitioning(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyHourly)
	seedUser(t, store, 2, models.Frequency10Min)
	seedCollection(t, store, 1, "0xabc")
	seedCollection(t, store, 2, "0xabc")

	ft := &fakeTracker{
		transactions: []models.Transaction{sampleTransaction("0xhash1", "42")},
		info:         &models.CollectionInfo{Name: "Test Apes"},
	}
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{"ethereum/opensea": ft}}
	messenger := newFakeMessenger()

	engine := NewEngine(store, resolver, notify.NewDispatcher(messenger), nil, nil)
	ctx := context.Background()

	// The most frequent subscriber owns the collection: the hourly and
	// instant loops both skip it.
	stats, err := engine.RunCycle(ctx, models.FrequencyHourly)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Collections)

	stats, err = engine.RunCycle(ctx, models.FrequencyInstant)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Collections)

	stats, err = engine.RunCycle(ctx, models.Frequency10Min)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Collections)
	// Both subscribers get the alert even though only one tier polls.
	assert.Len(t, messenger.messages[1], 1)
	assert.Len(t, messenger.messages[2], 1)
}

func TestRunCyclePassesCheckpointAsSince(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyInstant)
	seedCollection(t, store, 1, "0xabc")

	ft := &fakeTracker{info: &models.CollectionInfo{Name: "Test Apes"}}
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{"ethereum/opensea": ft}}

	engine := NewEngine(store, resolver, notify.NewDispatcher(newFakeMessenger()), nil, nil)

	cycleTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return cycleTime }

	ctx := context.Background()
	_, err := engine.RunCycle(ctx, models.FrequencyInstant)
	require.NoError(t, err)
	require.Len(t, ft.sinceSeen, 1)
	assert.True(t, ft.sinceSeen[0].IsZero(), "first cycle has no checkpoint")

	_, err = engine.RunCycle(ctx, models.FrequencyInstant)
	require.NoError(t, err)
	require.Len(t, ft.sinceSeen, 2)
	assert.True(t, ft.sinceSeen[1].Equal(cycleTime), "second cycle bounded by prior checkpoint")
}

func TestRunCycleKeepsCheckpointOnTrackerError(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyInstant)
	seedCollection(t, store, 1, "0xabc")

	ft := &fakeTracker{err: assert.AnError}
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{"ethereum/opensea": ft}}

	engine := NewEngine(store, resolver, notify.NewDispatcher(newFakeMessenger()), nil, nil)

	ctx := context.Background()
	priorCheckpoint := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetCheckpoint(ctx, "ethereum", "0xabc", priorCheckpoint))

	engine.now = func() time.Time { return priorCheckpoint.Add(30 * time.Second) }

	stats, err := engine.RunCycle(ctx, models.FrequencyInstant)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)

	// A failed fetch keeps the old bound so the window is retried.
	checkpoint, err := store.GetCheckpoint(ctx, "ethereum", "0xabc")
	require.NoError(t, err)
	assert.True(t, checkpoint.Equal(priorCheckpoint))
}

func TestRunCycleRedeliversWindowAfterTrackerRecovers(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyInstant)
	seedCollection(t, store, 1, "0xabc")

	// A sale happens while the marketplace API is down; once it recovers
	// the unchanged bound must pick the sale up.
	ft := &fakeTracker{
		err:  assert.AnError,
		info: &models.CollectionInfo{Name: "Test Apes"},
	}
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{"ethereum/opensea": ft}}
	messenger := newFakeMessenger()

	engine := NewEngine(store, resolver, notify.NewDispatcher(messenger), nil, nil)
	ctx := context.Background()

	stats, err := engine.RunCycle(ctx, models.FrequencyInstant)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Empty(t, messenger.messages)

	ft.mu.Lock()
	ft.err = nil
	ft.transactions = []models.Transaction{sampleTransaction("0xhash1", "42")}
	ft.mu.Unlock()

	stats, err = engine.RunCycle(ctx, models.FrequencyInstant)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewTransactions)
	assert.Equal(t, 1, stats.AlertsSent)
	require.Len(t, messenger.messages[1], 1)
	assert.Contains(t, messenger.messages[1][0], "Test Apes")

	// Both cycles queried from the same lower bound.
	require.Len(t, ft.sinceSeen, 2)
	assert.True(t, ft.sinceSeen[1].Equal(ft.sinceSeen[0]))
}

func TestRunCycleSkipsUnresolvableCollection(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyInstant)
	seedCollection(t, store, 1, "0xabc")

	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{}}
	messenger := newFakeMessenger()

	engine := NewEngine(store, resolver, notify.NewDispatcher(messenger), nil, nil)

	stats, err := engine.RunCycle(context.Background(), models.FrequencyInstant)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Errors)
	assert.Empty(t, messenger.messages)
}

func TestRunCycleIsolatesFailingCollections(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, 1, models.FrequencyInstant)
	seedCollection(t, store, 1, "0xaaa")
	seedCollection(t, store, 1, "0xbbb")

	healthy := sampleTransaction("0xhash2", "7")
	healthy.Address = "0xbbb"

	broken := &fakeTracker{err: assert.AnError}
	ok := &fakeTracker{
		transactions: []models.Transaction{healthy},
		info:         &models.CollectionInfo{Name: "Test Apes"},
	}
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{
		"ethereum/opensea": &perAddressTracker{byAddress: map[string]tracker.Tracker{
			"0xaaa": broken,
			"0xbbb": ok,
		}},
	}}
	messenger := newFakeMessenger()

	engine := NewEngine(store, resolver, notify.NewDispatcher(messenger), nil, nil)

	stats, err := engine.RunCycle(context.Background(), models.FrequencyInstant)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Collections)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.NewTransactions)
	assert.Len(t, messenger.messages[1], 1)
}

func TestEngineStartStop(t *testing.T) {
	store := newTestStore(t)
	resolver := &fakeResolver{trackers: map[string]tracker.Tracker{}}
	engine := NewEngine(store, resolver, notify.NewDispatcher(newFakeMessenger()), &Config{
		InstantInterval: 10 * time.Millisecond,
		TenMinInterval:  time.Hour,
		HourlyInterval:  time.Hour,
	}, nil)

	require.NoError(t, engine.Start(context.Background()))
	assert.True(t, engine.IsRunning())
	assert.Error(t, engine.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, engine.Stop())
	assert.False(t, engine.IsRunning())
	require.NoError(t, engine.Stop())
}
