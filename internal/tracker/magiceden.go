package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/gateway"
	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// DefaultMagicEdenAPIURL is the Magic Eden v2 mainnet API base.
const DefaultMagicEdenAPIURL = "https://api-mainnet.magiceden.dev/v2"

// MagicEdenTracker tracks Solana collections through the Magic Eden v2
// API. Collections are addressed by symbol or mint address.
type MagicEdenTracker struct {
	apiURL   string
	apiKey   string
	executor gateway.Executor
	logger   *logrus.Logger
}

// NewMagicEdenTracker creates a Magic Eden tracker.
func NewMagicEdenTracker(cfg *Config, executor gateway.Executor) *MagicEdenTracker {
	apiURL := cfg.MagicEdenAPIURL
	if apiURL == "" {
		apiURL = DefaultMagicEdenAPIURL
	}

	return &MagicEdenTracker{
		apiURL:   strings.TrimRight(apiURL, "/"),
		apiKey:   cfg.MagicEdenAPIKey,
		executor: executor,
		logger:   utils.GetLogger(),
	}
}

type magicEdenCollection struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type magicEdenActivity struct {
	Signature string  `json:"signature"`
	Type      string  `json:"type"`
	TokenMint string  `json:"tokenMint"`
	BlockTime int64   `json:"blockTime"`
	Buyer     string  `json:"buyer"`
	Seller    string  `json:"seller"`
	Price     float64 `json:"price"`
}

// ValidateCollection checks the symbol or mint resolves on Magic Eden.
func (t *MagicEdenTracker) ValidateCollection(ctx context.Context, address string) bool {
	if !ValidMagicEdenIdentifier(address) {
		return false
	}

	_, err := t.fetchCollection(ctx, address)
	if err != nil {
		t.logger.WithField("collection", address).Debug("Magic Eden collection lookup failed: ", err)
		return false
	}
	return true
}

// CollectionInfo fetches display metadata for the collection.
func (t *MagicEdenTracker) CollectionInfo(ctx context.Context, address string) (*models.CollectionInfo, error) {
	if !ValidMagicEdenIdentifier(address) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid Solana collection identifier", address)
	}

	collection, err := t.fetchCollection(ctx, address)
	if err != nil {
		return nil, err
	}

	return &models.CollectionInfo{
		Name:        collection.Name,
		Description: collection.Description,
		ImageURL:    collection.Image,
	}, nil
}

// RecentTransactions fetches recent buy activity for the collection.
// Magic Eden has no server-side time bound, so since is applied after
// the fetch.
func (t *MagicEdenTracker) RecentTransactions(ctx context.Context, address string, since time.Time) ([]models.Transaction, error) {
	if !ValidMagicEdenIdentifier(address) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid Solana collection identifier", address)
	}

	resp, err := t.executor.Execute(ctx, &gateway.Request{
		URL:     fmt.Sprintf("%s/collections/%s/activities", t.apiURL, address),
		Headers: t.headers(),
		Params: map[string]string{
			"offset": "0",
			"limit":  "100",
		},
	})
	if err != nil {
		return nil, err
	}

	var activities []magicEdenActivity
	if err := resp.Decode(&activities); err != nil {
		return nil, err
	}

	transactions := make([]models.Transaction, 0, len(activities))
	for _, activity := range activities {
		if activity.Type != "buyNow" {
			continue
		}
		if activity.Signature == "" || activity.TokenMint == "" {
			continue
		}

		timestamp := time.Unix(activity.BlockTime, 0).UTC()
		if !since.IsZero() && timestamp.Before(since) {
			continue
		}

		transactions = append(transactions, models.Transaction{
			Blockchain:  "solana",
			Marketplace: "magiceden",
			Address:     address,
			TokenID:     activity.TokenMint,
			Type:        models.TransactionPurchase,
			Price:       activity.Price,
			Currency:    "SOL",
			Buyer:       activity.Buyer,
			Seller:      activity.Seller,
			Timestamp:   timestamp,
			Hash:        activity.Signature,
		})
	}

	return transactions, nil
}

func (t *MagicEdenTracker) fetchCollection(ctx context.Context, address string) (*magicEdenCollection, error) {
	resp, err := t.executor.Execute(ctx, &gateway.Request{
		URL:     fmt.Sprintf("%s/collections/%s", t.apiURL, address),
		Headers: t.headers(),
	})
	if err != nil {
		return nil, err
	}

	var collection magicEdenCollection
	if err := resp.Decode(&collection); err != nil {
		return nil, err
	}
	if collection.Symbol == "" {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Unknown Magic Eden collection", address)
	}
	return &collection, nil
}

func (t *MagicEdenTracker) headers() map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	if t.apiKey != "" {
		headers["Authorization"] = "Bearer " + t.apiKey
	}
	return headers
}
