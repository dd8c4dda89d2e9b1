package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/nft-trade-watcher/internal/gateway"
	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// fakeExecutor records requests and replays canned responses keyed by
// URL substring.
type fakeExecutor struct {
	responses map[string]string
	calls     []*gateway.Request
	err       error
}

func (f *fakeExecutor) Execute(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	for substr, body := range f.responses {
		if substr != "" && contains(req.URL, substr) {
			return &gateway.Response{Status: 200, Body: []byte(body)}, nil
		}
	}
	return nil, utils.NewAppError(utils.ErrCodeGateway, "Request failed with status 404", req.URL)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

const validEVM = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(&Config{}, &fakeExecutor{})

	tests := []struct {
		blockchain  string
		marketplace string
		supported   bool
	}{
		{"ethereum", "opensea", true},
		{"polygon", "opensea", true},
		{"solana", "magiceden", true},
		{"ethereum", "blur", false},
		{"ethereum", "looksrare", false},
		{"solana", "tensor", false},
		{"polygon", "okx", false},
		{"cardano", "jpgstore", false},
	}

	for _, tt := range tests {
		tr, err := registry.Lookup(tt.blockchain, tt.marketplace)
		if tt.supported {
			require.NoError(t, err, "%s/%s", tt.blockchain, tt.marketplace)
			assert.NotNil(t, tr)
		} else {
			require.Error(t, err, "%s/%s", tt.blockchain, tt.marketplace)
			assert.Equal(t, utils.ErrCodeUnsupported, utils.ErrorCode(err))
		}
		assert.Equal(t, tt.supported, registry.Supported(tt.blockchain, tt.marketplace))
	}
}

func TestAddressPrechecks(t *testing.T) {
	assert.True(t, ValidEVMAddress(validEVM))
	assert.True(t, ValidEVMAddress("0xabcdef1234567890abcdef1234567890abcdef12"))

	assert.False(t, ValidEVMAddress(""))
	assert.False(t, ValidEVMAddress("0x123"))
	assert.False(t, ValidEVMAddress("0xZZcdef1234567890abcdef1234567890abcdef12"))
	assert.False(t, ValidEVMAddress("bc4ca0eda7647a8ab7c2061c2e118a18a936f13d00"))

	assert.True(t, ValidSolanaAddress("DSwfRF1jhhu6HpSuzaig1G19kzP73PfLZBPLofkw6fLD"))
	assert.False(t, ValidSolanaAddress("short"))
	assert.False(t, ValidSolanaAddress("0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl"))

	assert.True(t, ValidMagicEdenIdentifier("okay_bears"))
	assert.True(t, ValidMagicEdenIdentifier("DSwfRF1jhhu6HpSuzaig1G19kzP73PfLZBPLofkw6fLD"))
	assert.False(t, ValidMagicEdenIdentifier(""))
	assert.False(t, ValidMagicEdenIdentifier("Has Spaces"))
}

func TestOpenSeaMalformedAddressSkipsNetwork(t *testing.T) {
	executor := &fakeExecutor{}
	tr := NewOpenSeaTracker("ethereum", &Config{}, executor)

	assert.False(t, tr.ValidateCollection(context.Background(), "not-an-address"))
	_, err := tr.CollectionInfo(context.Background(), "not-an-address")
	require.Error(t, err)
	_, err = tr.RecentTransactions(context.Background(), "0x123", time.Time{})
	require.Error(t, err)

	assert.Empty(t, executor.calls, "malformed input must never reach the gateway")
}

func TestMagicEdenMalformedIdentifierSkipsNetwork(t *testing.T) {
	executor := &fakeExecutor{}
	tr := NewMagicEdenTracker(&Config{}, executor)

	assert.False(t, tr.ValidateCollection(context.Background(), "Bad Symbol!"))
	_, err := tr.RecentTransactions(context.Background(), "", time.Time{})
	require.Error(t, err)

	assert.Empty(t, executor.calls)
}

func TestOpenSeaValidateAndInfo(t *testing.T) {
	executor := &fakeExecutor{responses: map[string]string{
		"/chain/ethereum/contract/": `{"address":"0xbc4c","chain":"ethereum","collection":"boredapeyachtclub","name":"BAYC"}`,
		"/collections/boredapeyachtclub": `{"collection":"boredapeyachtclub","name":"Bored Ape Yacht Club",
			"description":"10k apes","image_url":"https://img.example/bayc.png"}`,
	}}
	tr := NewOpenSeaTracker("ethereum", &Config{OpenSeaAPIKey: "k"}, executor)

	assert.True(t, tr.ValidateCollection(context.Background(), validEVM))

	info, err := tr.CollectionInfo(context.Background(), validEVM)
	require.NoError(t, err)
	assert.Equal(t, "Bored Ape Yacht Club", info.Name)
	assert.Equal(t, "https://img.example/bayc.png", info.ImageURL)

	// API key travels on every request.
	for _, call := range executor.calls {
		assert.Equal(t, "k", call.Headers["X-API-KEY"])
	}
}

func TestOpenSeaRecentTransactions(t *testing.T) {
	executor := &fakeExecutor{responses: map[string]string{
		"/events/chain/ethereum/contract/": `{"asset_events":[
			{"event_type":"sale","event_timestamp":1700000000,"transaction":"0xhash1",
			 "buyer":"0xbuyer","seller":"0xseller",
			 "nft":{"identifier":"1234"},
			 "payment":{"quantity":"45500000000000000000","decimals":18,"symbol":"ETH"}},
			{"event_type":"transfer","event_timestamp":1700000100,"transaction":"0xhash2",
			 "nft":{"identifier":"9"}}
		]}`,
	}}
	tr := NewOpenSeaTracker("ethereum", &Config{}, executor)

	since := time.Unix(1699990000, 0)
	txs, err := tr.RecentTransactions(context.Background(), validEVM, since)
	require.NoError(t, err)
	require.Len(t, txs, 1, "non-sale events are dropped")

	tx := txs[0]
	assert.Equal(t, "ethereum", tx.Blockchain)
	assert.Equal(t, "opensea", tx.Marketplace)
	assert.Equal(t, models.TransactionSale, tx.Type)
	assert.Equal(t, "1234", tx.TokenID)
	assert.InDelta(t, 45.5, tx.Price, 0.0001)
	assert.Equal(t, "ETH", tx.Currency)
	assert.Equal(t, "0xhash1", tx.Hash)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), tx.Timestamp)

	// The checkpoint bounds the query window.
	require.Len(t, executor.calls, 1)
	assert.Equal(t, "1699990000", executor.calls[0].Params["after"])
}

func TestMagicEdenRecentTransactions(t *testing.T) {
	executor := &fakeExecutor{responses: map[string]string{
		"/collections/okay_bears/activities": `[
			{"signature":"sig1","type":"buyNow","tokenMint":"MintA","blockTime":1700000000,
			 "buyer":"BuyerA","seller":"SellerA","price":12.5},
			{"signature":"sig2","type":"list","tokenMint":"MintB","blockTime":1700000050,"price":13},
			{"signature":"sig3","type":"buyNow","tokenMint":"MintC","blockTime":1600000000,
			 "buyer":"BuyerC","seller":"SellerC","price":9}
		]`,
	}}
	tr := NewMagicEdenTracker(&Config{}, executor)

	since := time.Unix(1650000000, 0)
	txs, err := tr.RecentTransactions(context.Background(), "okay_bears", since)
	require.NoError(t, err)
	require.Len(t, txs, 1, "listings and stale activity are dropped")

	tx := txs[0]
	assert.Equal(t, "solana", tx.Blockchain)
	assert.Equal(t, "magiceden", tx.Marketplace)
	assert.Equal(t, models.TransactionPurchase, tx.Type)
	assert.Equal(t, "MintA", tx.TokenID)
	assert.Equal(t, 12.5, tx.Price)
	assert.Equal(t, "SOL", tx.Currency)
	assert.Equal(t, "sig1", tx.Hash)
}

func TestMagicEdenValidate(t *testing.T) {
	executor := &fakeExecutor{responses: map[string]string{
		"/collections/okay_bears": `{"symbol":"okay_bears","name":"Okay Bears","image":"https://img.example/ob.png"}`,
	}}
	tr := NewMagicEdenTracker(&Config{}, executor)

	assert.True(t, tr.ValidateCollection(context.Background(), "okay_bears"))
	assert.False(t, tr.ValidateCollection(context.Background(), "unknown_symbol"))

	info, err := tr.CollectionInfo(context.Background(), "okay_bears")
	require.NoError(t, err)
	assert.Equal(t, "Okay Bears", info.Name)
}
