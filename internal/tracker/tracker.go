package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartdevs17/nft-trade-watcher/internal/gateway"
	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// Tracker normalizes one marketplace's API into the common transaction
// shape. One variant exists per supported (blockchain, marketplace)
// pair; all variants share the same rate-limited gateway.
type Tracker interface {
	// ValidateCollection confirms the address resolves to a real
	// collection. Malformed input returns false without touching the
	// network.
	ValidateCollection(ctx context.Context, address string) bool

	// CollectionInfo fetches display metadata for a collection.
	CollectionInfo(ctx context.Context, address string) (*models.CollectionInfo, error)

	// RecentTransactions returns the marketplace's recent activity for
	// the collection, normalized and ordered as returned by the
	// marketplace. A non-zero since bounds the query window where the
	// marketplace supports it.
	RecentTransactions(ctx context.Context, address string, since time.Time) ([]models.Transaction, error)
}

// Config holds marketplace API credentials and endpoints.
type Config struct {
	OpenSeaAPIKey   string `json:"opensea_api_key"`
	OpenSeaAPIURL   string `json:"opensea_api_url"`
	MagicEdenAPIKey string `json:"magiceden_api_key"`
	MagicEdenAPIURL string `json:"magiceden_api_url"`
}

// Registry resolves (blockchain, marketplace) pairs to tracker
// variants. Unsupported pairs are a normal user-visible condition.
type Registry struct {
	trackers map[string]Tracker
}

// NewRegistry builds the registry of supported tracker variants.
func NewRegistry(cfg *Config, executor gateway.Executor) *Registry {
	r := &Registry{trackers: make(map[string]Tracker)}

	r.register("ethereum", "opensea", NewOpenSeaTracker("ethereum", cfg, executor))
	r.register("polygon", "opensea", NewOpenSeaTracker("polygon", cfg, executor))
	r.register("solana", "magiceden", NewMagicEdenTracker(cfg, executor))

	return r
}

func (r *Registry) register(blockchain, marketplace string, t Tracker) {
	r.trackers[registryKey(blockchain, marketplace)] = t
}

// Lookup returns the tracker for a (blockchain, marketplace) pair, or
// an UNSUPPORTED error when no variant covers it.
func (r *Registry) Lookup(blockchain, marketplace string) (Tracker, error) {
	t, ok := r.trackers[registryKey(blockchain, marketplace)]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeUnsupported,
			"No tracker for marketplace",
			fmt.Sprintf("%s/%s", blockchain, marketplace))
	}
	return t, nil
}

// Supported reports whether a (blockchain, marketplace) pair has a
// tracker variant.
func (r *Registry) Supported(blockchain, marketplace string) bool {
	_, ok := r.trackers[registryKey(blockchain, marketplace)]
	return ok
}

func registryKey(blockchain, marketplace string) string {
	return strings.ToLower(blockchain) + "/" + strings.ToLower(marketplace)
}
