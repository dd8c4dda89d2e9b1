package models

import "time"

// TrackedCollection is one user's subscription to a collection on one
// marketplace. The checkpoint is shared per (blockchain, address), not
// per user: every subscriber of the same collection observes the same
// last-checked timestamp.
type TrackedCollection struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	Blockchain     string     `json:"blockchain" db:"blockchain"`
	Marketplace    string     `json:"marketplace" db:"marketplace"`
	Address        string     `json:"collection_address" db:"collection_address"`
	Name           string     `json:"collection_name,omitempty" db:"collection_name"`
	LastCheckpoint *time.Time `json:"last_checkpoint,omitempty" db:"last_checkpoint"`
}

// DisplayName returns the collection name if known, the address otherwise.
func (c *TrackedCollection) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Address
}

// CollectionInfo is marketplace metadata about a collection, fetched
// during validation and attached to alerts.
type CollectionInfo struct {
	Name        string  `json:"collection_name,omitempty"`
	Description string  `json:"description,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	FloorPrice  float64 `json:"floor_price,omitempty"`
}

// CollectionTracker pairs a subscriber with their settings, as returned
// by the trackers-of-collection query.
type CollectionTracker struct {
	UserID   int64    `json:"user_id"`
	Settings Settings `json:"settings"`
}
