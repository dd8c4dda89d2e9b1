package tracker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/gateway"
	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// DefaultOpenSeaAPIURL is the OpenSea v2 API base.
const DefaultOpenSeaAPIURL = "https://api.opensea.io/api/v2"

// OpenSeaTracker tracks EVM collections through the OpenSea v2 API.
// One instance serves one chain; ethereum and polygon are registered
// separately.
type OpenSeaTracker struct {
	chain    string
	apiURL   string
	apiKey   string
	executor gateway.Executor
	logger   *logrus.Logger
}

// NewOpenSeaTracker creates an OpenSea tracker for the given chain.
func NewOpenSeaTracker(chain string, cfg *Config, executor gateway.Executor) *OpenSeaTracker {
	apiURL := cfg.OpenSeaAPIURL
	if apiURL == "" {
		apiURL = DefaultOpenSeaAPIURL
	}

	return &OpenSeaTracker{
		chain:    strings.ToLower(chain),
		apiURL:   strings.TrimRight(apiURL, "/"),
		apiKey:   cfg.OpenSeaAPIKey,
		executor: executor,
		logger:   utils.GetLogger(),
	}
}

type openSeaContract struct {
	Address    string `json:"address"`
	Chain      string `json:"chain"`
	Collection string `json:"collection"`
	Name       string `json:"name"`
}

type openSeaCollection struct {
	Collection  string `json:"collection"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

type openSeaEvents struct {
	AssetEvents []openSeaEvent `json:"asset_events"`
}

type openSeaEvent struct {
	EventType      string `json:"event_type"`
	EventTimestamp int64  `json:"event_timestamp"`
	Transaction    string `json:"transaction"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	NFT            struct {
		Identifier string `json:"identifier"`
	} `json:"nft"`
	Payment struct {
		Quantity string `json:"quantity"`
		Decimals int    `json:"decimals"`
		Symbol   string `json:"symbol"`
	} `json:"payment"`
}

// ValidateCollection checks the contract resolves on this chain.
func (t *OpenSeaTracker) ValidateCollection(ctx context.Context, address string) bool {
	if !ValidEVMAddress(address) {
		return false
	}

	_, err := t.fetchContract(ctx, address)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"chain":   t.chain,
			"address": address,
		}).Debug("OpenSea contract lookup failed: ", err)
		return false
	}
	return true
}

// CollectionInfo resolves the contract to its collection metadata.
func (t *OpenSeaTracker) CollectionInfo(ctx context.Context, address string) (*models.CollectionInfo, error) {
	if !ValidEVMAddress(address) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid EVM address", address)
	}

	contract, err := t.fetchContract(ctx, address)
	if err != nil {
		return nil, err
	}

	resp, err := t.executor.Execute(ctx, &gateway.Request{
		URL:     fmt.Sprintf("%s/collections/%s", t.apiURL, contract.Collection),
		Headers: t.headers(),
	})
	if err != nil {
		return nil, err
	}

	var collection openSeaCollection
	if err := resp.Decode(&collection); err != nil {
		return nil, err
	}

	name := collection.Name
	if name == "" {
		name = contract.Name
	}

	return &models.CollectionInfo{
		Name:        name,
		Description: collection.Description,
		ImageURL:    collection.ImageURL,
	}, nil
}

// RecentTransactions fetches recent sale events for the contract.
func (t *OpenSeaTracker) RecentTransactions(ctx context.Context, address string, since time.Time) ([]models.Transaction, error) {
	if !ValidEVMAddress(address) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid EVM address", address)
	}

	params := map[string]string{
		"event_type": "sale",
		"limit":      "50",
	}
	if !since.IsZero() {
		params["after"] = strconv.FormatInt(since.Unix(), 10)
	}

	resp, err := t.executor.Execute(ctx, &gateway.Request{
		URL:     fmt.Sprintf("%s/events/chain/%s/contract/%s", t.apiURL, t.chain, address),
		Headers: t.headers(),
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	var events openSeaEvents
	if err := resp.Decode(&events); err != nil {
		return nil, err
	}

	transactions := make([]models.Transaction, 0, len(events.AssetEvents))
	for _, event := range events.AssetEvents {
		if event.EventType != "sale" {
			continue
		}
		if event.Transaction == "" || event.NFT.Identifier == "" {
			continue
		}

		currency := event.Payment.Symbol
		if currency == "" {
			currency = utils.BlockchainCurrency(t.chain)
		}

		transactions = append(transactions, models.Transaction{
			Blockchain:  t.chain,
			Marketplace: "opensea",
			Address:     strings.ToLower(address),
			TokenID:     event.NFT.Identifier,
			Type:        models.TransactionSale,
			Price:       paymentAmount(event.Payment.Quantity, event.Payment.Decimals),
			Currency:    currency,
			Buyer:       event.Buyer,
			Seller:      event.Seller,
			Timestamp:   time.Unix(event.EventTimestamp, 0).UTC(),
			Hash:        event.Transaction,
		})
	}

	return transactions, nil
}

func (t *OpenSeaTracker) fetchContract(ctx context.Context, address string) (*openSeaContract, error) {
	resp, err := t.executor.Execute(ctx, &gateway.Request{
		URL:     fmt.Sprintf("%s/chain/%s/contract/%s", t.apiURL, t.chain, address),
		Headers: t.headers(),
	})
	if err != nil {
		return nil, err
	}

	var contract openSeaContract
	if err := resp.Decode(&contract); err != nil {
		return nil, err
	}
	if contract.Collection == "" {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Contract has no collection", address)
	}
	return &contract, nil
}

func (t *OpenSeaTracker) headers() map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	if t.apiKey != "" {
		headers["X-API-KEY"] = t.apiKey
	}
	return headers
}

// paymentAmount converts a base-unit quantity string into a decimal
// token amount.
func paymentAmount(quantity string, decimals int) float64 {
	if quantity == "" {
		return 0
	}
	raw, err := strconv.ParseFloat(quantity, 64)
	if err != nil {
		return 0
	}
	if decimals <= 0 {
		return raw
	}
	return raw / math.Pow10(decimals)
}
