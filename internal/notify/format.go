package notify

import (
	"fmt"
	"strings"

	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// BlockchainDisplayName returns the human-readable blockchain name.
func BlockchainDisplayName(blockchain string) string {
	switch strings.ToLower(blockchain) {
	case "ethereum":
		return "Ethereum"
	case "solana":
		return "Solana"
	case "polygon":
		return "Polygon"
	default:
		return blockchain
	}
}

// FormatAlert renders a transaction into the user-facing alert text.
// The rendering is deterministic for a given transaction and info.
func FormatAlert(tx *models.Transaction, info *models.CollectionInfo) string {
	var title string
	if tx.Type == models.TransactionSale {
		title = "🔴 New Sale Alert! 🔴"
	} else {
		title = "🟢 New Purchase Alert! 🟢"
	}

	collectionName := "Unknown Collection"
	if info != nil && info.Name != "" {
		collectionName = info.Name
	} else if tx.Address != "" {
		collectionName = tx.Address
	}

	currency := tx.Currency
	if currency == "" {
		currency = utils.BlockchainCurrency(tx.Blockchain)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "Collection: %s\n", collectionName)
	fmt.Fprintf(&b, "Blockchain: %s\n", BlockchainDisplayName(tx.Blockchain))
	fmt.Fprintf(&b, "NFT ID: #%s\n", tx.TokenID)
	fmt.Fprintf(&b, "Price: %s\n", utils.FormatPrice(tx.Price, currency))
	fmt.Fprintf(&b, "Buyer: %s\n", utils.FormatAddress(tx.Buyer))
	fmt.Fprintf(&b, "Seller: %s\n", utils.FormatAddress(tx.Seller))

	if tx.Hash != "" {
		fmt.Fprintf(&b, "\nTransaction: %s", utils.TransactionURL(tx.Blockchain, tx.Hash))
	}

	return b.String()
}
