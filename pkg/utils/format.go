package utils

import (
	"fmt"
	"strings"
)

// FormatAddress shortens a blockchain address for display.
func FormatAddress(address string) string {
	const maxLength = 10

	if address == "" {
		return "Unknown"
	}
	if len(address) <= maxLength {
		return address
	}

	prefix := address[:maxLength/2]
	suffix := address[len(address)-maxLength/2:]
	return fmt.Sprintf("%s...%s", prefix, suffix)
}

// FormatPrice renders a price with four decimal places and its currency.
func FormatPrice(price float64, currency string) string {
	if price == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%.4f %s", price, currency)
}

// BlockchainCurrency returns the native currency symbol for a blockchain.
func BlockchainCurrency(blockchain string) string {
	switch strings.ToLower(blockchain) {
	case "ethereum":
		return "ETH"
	case "solana":
		return "SOL"
	case "polygon":
		return "MATIC"
	default:
		return "Unknown"
	}
}

// TransactionURL returns the block explorer URL for a transaction hash.
func TransactionURL(blockchain, txHash string) string {
	if txHash == "" {
		return ""
	}

	switch strings.ToLower(blockchain) {
	case "ethereum":
		return "https://etherscan.io/tx/" + txHash
	case "solana":
		return "https://solscan.io/tx/" + txHash
	case "polygon":
		return "https://polygonscan.com/tx/" + txHash
	default:
		return "#"
	}
}
