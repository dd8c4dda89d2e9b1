package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/metrics"
	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// Messenger delivers rendered alerts to end users. The Telegram client
// implements it; tests use fakes.
type Messenger interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// Dispatcher renders transactions into alerts and pushes them through
// the messenger, honoring per-user alert-type preferences.
type Dispatcher struct {
	messenger Messenger
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates an alert dispatcher.
func NewDispatcher(messenger Messenger) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		logger:    utils.GetLogger(),
	}
}

// SetMetrics attaches delivery counters to the dispatcher.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// WantsAlert reports whether a user's settings admit this transaction
// type.
func WantsAlert(settings models.Settings, txType models.TransactionType) bool {
	switch settings.AlertType {
	case models.AlertSales:
		return txType == models.TransactionSale
	case models.AlertPurchases:
		return txType == models.TransactionPurchase
	default:
		return true
	}
}

// Notify delivers one transaction alert to one user. Transactions
// filtered out by the user's settings are silently skipped.
func (d *Dispatcher) Notify(ctx context.Context, userID int64, settings models.Settings,
	tx *models.Transaction, info *models.CollectionInfo) error {

	if !WantsAlert(settings, tx.Type) {
		return nil
	}

	message := FormatAlert(tx, info)
	if err := d.messenger.SendMessage(ctx, userID, message); err != nil {
		return utils.NewAppError(utils.ErrCodeTelegram, "Failed to send alert", err.Error())
	}

	d.logger.WithFields(logrus.Fields{
		"user":  userID,
		"tx":    tx.Hash,
		"token": tx.TokenID,
	}).Info("Alert sent")
	return nil
}

// Fanout delivers a transaction to every subscriber. A delivery failure
// is logged per recipient and never stops delivery to the rest.
// Returns the number of alerts actually sent.
func (d *Dispatcher) Fanout(ctx context.Context, trackers []models.CollectionTracker,
	tx *models.Transaction, info *models.CollectionInfo) int {

	sent := 0
	for _, tracker := range trackers {
		if !WantsAlert(tracker.Settings, tx.Type) {
			continue
		}
		if err := d.Notify(ctx, tracker.UserID, tracker.Settings, tx, info); err != nil {
			d.logger.WithFields(logrus.Fields{
				"user": tracker.UserID,
				"tx":   tx.Hash,
			}).Error("Failed to send alert: ", err)
			if d.metrics != nil {
				d.metrics.AlertsFailedTotal.Inc()
			}
			continue
		}
		sent++
	}
	return sent
}
