package storage

import (
	"context"
	"errors"
	"time"

	"github.com/smartdevs17/nft-trade-watcher/internal/models"
)

// Benign conflict results. Callers treat these as informational, not as
// failures.
var (
	// ErrAlreadyTracked is returned when a user adds a collection they
	// already track.
	ErrAlreadyTracked = errors.New("collection already tracked")

	// ErrAlreadyRecorded is returned when a transaction with the same
	// (blockchain, hash, token_id) key was recorded before.
	ErrAlreadyRecorded = errors.New("transaction already recorded")

	// ErrNotFound is returned when a removal or lookup matches nothing.
	ErrNotFound = errors.New("not found")
)

// Storage defines the persistence operations used by the core.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// User operations
	UpsertUser(ctx context.Context, user *models.User) error
	GetSettings(ctx context.Context, userID int64) (models.Settings, error)
	SetSettings(ctx context.Context, userID int64, settings models.Settings) error

	// Collection operations
	AddCollection(ctx context.Context, collection *models.TrackedCollection) error
	RemoveCollection(ctx context.Context, userID int64, blockchain, address string) error
	ListUserCollections(ctx context.Context, userID int64) ([]*models.TrackedCollection, error)
	ListTrackedCollections(ctx context.Context) ([]*models.TrackedCollection, error)
	ListCollectionTrackers(ctx context.Context, blockchain, address string) ([]models.CollectionTracker, error)

	// Checkpoint operations. The checkpoint is shared per
	// (blockchain, address) across all subscribers.
	GetCheckpoint(ctx context.Context, blockchain, address string) (time.Time, error)
	SetCheckpoint(ctx context.Context, blockchain, address string, checkpoint time.Time) error

	// Transaction history. RecordTransaction is idempotent on the
	// uniqueness key and returns ErrAlreadyRecorded on replays.
	RecordTransaction(ctx context.Context, tx *models.Transaction) (int64, error)
}

// Config holds storage configuration.
type Config struct {
	Type             string        `json:"type"` // sqlite, postgres
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
