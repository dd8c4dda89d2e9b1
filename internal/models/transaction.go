package models

import "time"

// TransactionType classifies a marketplace activity entry.
type TransactionType string

const (
	TransactionSale     TransactionType = "sale"
	TransactionPurchase TransactionType = "purchase"
	TransactionOther    TransactionType = "other"
)

// Transaction is one normalized marketplace trade. Immutable once
// recorded; (blockchain, transaction_hash, token_id) is the uniqueness
// key that makes repeated polls idempotent.
type Transaction struct {
	ID          int64           `json:"id,omitempty" db:"id"`
	Blockchain  string          `json:"blockchain" db:"blockchain"`
	Marketplace string          `json:"marketplace" db:"marketplace"`
	Address     string          `json:"collection_address" db:"collection_address"`
	TokenID     string          `json:"token_id" db:"token_id"`
	Type        TransactionType `json:"transaction_type" db:"transaction_type"`
	Price       float64         `json:"price,omitempty" db:"price"`
	Currency    string          `json:"currency,omitempty" db:"currency"`
	Buyer       string          `json:"buyer,omitempty" db:"buyer"`
	Seller      string          `json:"seller,omitempty" db:"seller"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	Hash        string          `json:"transaction_hash" db:"transaction_hash"`
}
