package models

// AlertType controls which transaction kinds a user is alerted about.
type AlertType string

const (
	AlertAll       AlertType = "all"
	AlertSales     AlertType = "sales"
	AlertPurchases AlertType = "purchases"
)

// UpdateFrequency maps to one of the three polling tiers.
type UpdateFrequency string

const (
	FrequencyInstant UpdateFrequency = "instant"
	Frequency10Min   UpdateFrequency = "10min"
	FrequencyHourly  UpdateFrequency = "hourly"
)

// User is a bot user. Created on first interaction, never deleted.
type User struct {
	ID        int64  `json:"user_id" db:"user_id"`
	FirstName string `json:"first_name" db:"first_name"`
	Username  string `json:"username" db:"username"`
}

// Settings holds per-user alert preferences.
type Settings struct {
	AlertType       AlertType       `json:"alert_type"`
	UpdateFrequency UpdateFrequency `json:"update_frequency"`
}

// DefaultSettings returns the settings applied to users who never
// visited the settings flow.
func DefaultSettings() Settings {
	return Settings{
		AlertType:       AlertAll,
		UpdateFrequency: FrequencyInstant,
	}
}

// Valid reports whether the alert type is one of the known values.
func (a AlertType) Valid() bool {
	switch a {
	case AlertAll, AlertSales, AlertPurchases:
		return true
	}
	return false
}

// Valid reports whether the frequency is one of the known values.
func (f UpdateFrequency) Valid() bool {
	switch f {
	case FrequencyInstant, Frequency10Min, FrequencyHourly:
		return true
	}
	return false
}

// Rank orders frequencies from most to least frequent. Lower is more
// frequent. Unknown values sort last.
func (f UpdateFrequency) Rank() int {
	switch f {
	case FrequencyInstant:
		return 0
	case Frequency10Min:
		return 1
	case FrequencyHourly:
		return 2
	}
	return 3
}
