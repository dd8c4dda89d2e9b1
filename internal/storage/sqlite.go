package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// checkpointLayout is how checkpoints are stored in the text column.
const checkpointLayout = time.RFC3339

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *Config
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *Config) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes the database connection
func (s *SQLiteStorage) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" && s.config.ConnectionString != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	maxConns := s.config.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	// WAL mode for concurrent reads during poll cycles.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	for _, migration := range s.migrations {
		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// UpsertUser inserts or updates a user, preserving existing settings.
func (s *SQLiteStorage) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, first_name, username)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			first_name = excluded.first_name,
			username = excluded.username
	`, user.ID, user.FirstName, user.Username)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert user", err.Error())
	}
	return nil
}

// GetSettings returns the user's settings, falling back to defaults for
// unknown users and unset fields.
func (s *SQLiteStorage) GetSettings(ctx context.Context, userID int64) (models.Settings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT settings FROM users WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get settings", err.Error())
	}
	return decodeSettings(raw)
}

// SetSettings replaces the user's settings.
func (s *SQLiteStorage) SetSettings(ctx context.Context, userID int64, settings models.Settings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to encode settings", err.Error())
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET settings = ? WHERE user_id = ?`, string(encoded), userID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set settings", err.Error())
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCollection adds a tracked collection. Returns ErrAlreadyTracked
// when the user already tracks this (blockchain, address) pair.
func (s *SQLiteStorage) AddCollection(ctx context.Context, collection *models.TrackedCollection) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_collections
		(user_id, blockchain, marketplace, collection_address, collection_name)
		VALUES (?, ?, ?, ?, ?)
	`, collection.UserID, collection.Blockchain, collection.Marketplace,
		collection.Address, nullable(collection.Name))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyTracked
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to add collection", err.Error())
	}

	id, _ := result.LastInsertId()
	collection.ID = id
	return nil
}

// RemoveCollection removes a user's tracked collection. Returns
// ErrNotFound when the user does not track it.
func (s *SQLiteStorage) RemoveCollection(ctx context.Context, userID int64, blockchain, address string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tracked_collections
		WHERE user_id = ? AND blockchain = ? AND collection_address = ?
	`, userID, blockchain, address)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to remove collection", err.Error())
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserCollections returns all collections tracked by a user.
func (s *SQLiteStorage) ListUserCollections(ctx context.Context, userID int64) ([]*models.TrackedCollection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, blockchain, marketplace, collection_address,
		       COALESCE(collection_name, ''), last_checkpoint
		FROM tracked_collections
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list user collections", err.Error())
	}
	defer rows.Close()

	return scanCollections(rows)
}

// ListTrackedCollections returns the distinct set of tracked
// collections across all users.
func (s *SQLiteStorage) ListTrackedCollections(ctx context.Context) ([]*models.TrackedCollection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(id), 0, blockchain, marketplace, collection_address,
		       COALESCE(MAX(collection_name), ''), MAX(last_checkpoint)
		FROM tracked_collections
		GROUP BY blockchain, marketplace, collection_address
		ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list tracked collections", err.Error())
	}
	defer rows.Close()

	return scanCollections(rows)
}

// ListCollectionTrackers returns every user tracking a collection,
// with their settings.
func (s *SQLiteStorage) ListCollectionTrackers(ctx context.Context, blockchain, address string) ([]models.CollectionTracker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tc.user_id, u.settings
		FROM tracked_collections tc
		JOIN users u ON tc.user_id = u.user_id
		WHERE tc.blockchain = ? AND tc.collection_address = ?
		ORDER BY tc.user_id
	`, blockchain, address)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list collection trackers", err.Error())
	}
	defer rows.Close()

	var trackers []models.CollectionTracker
	for rows.Next() {
		var tracker models.CollectionTracker
		var raw string
		if err := rows.Scan(&tracker.UserID, &raw); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan tracker row", err.Error())
		}
		settings, err := decodeSettings(raw)
		if err != nil {
			return nil, err
		}
		tracker.Settings = settings
		trackers = append(trackers, tracker)
	}
	return trackers, rows.Err()
}

// GetCheckpoint returns the shared checkpoint for a collection, or the
// zero time when none was recorded yet.
func (s *SQLiteStorage) GetCheckpoint(ctx context.Context, blockchain, address string) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT last_checkpoint FROM tracked_collections
		WHERE blockchain = ? AND collection_address = ?
		LIMIT 1
	`, blockchain, address).Scan(&raw)
	if err == sql.ErrNoRows || (err == nil && !raw.Valid) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get checkpoint", err.Error())
	}

	checkpoint, err := time.Parse(checkpointLayout, raw.String)
	if err != nil {
		return time.Time{}, nil
	}
	return checkpoint, nil
}

// SetCheckpoint updates the checkpoint on every row tracking the
// collection, keeping it shared across subscribers.
func (s *SQLiteStorage) SetCheckpoint(ctx context.Context, blockchain, address string, checkpoint time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracked_collections SET last_checkpoint = ?
		WHERE blockchain = ? AND collection_address = ?
	`, checkpoint.UTC().Format(checkpointLayout), blockchain, address)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set checkpoint", err.Error())
	}
	return nil
}

// RecordTransaction inserts a transaction, returning ErrAlreadyRecorded
// when the uniqueness key was seen before.
func (s *SQLiteStorage) RecordTransaction(ctx context.Context, tx *models.Transaction) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_history
		(blockchain, marketplace, collection_address, token_id, transaction_type,
		 price, currency, buyer, seller, timestamp, transaction_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.Blockchain, tx.Marketplace, tx.Address, tx.TokenID, string(tx.Type),
		tx.Price, tx.Currency, tx.Buyer, tx.Seller,
		tx.Timestamp.UTC().Format(checkpointLayout), tx.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyRecorded
		}
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to record transaction", err.Error())
	}
	return result.LastInsertId()
}

func scanCollections(rows *sql.Rows) ([]*models.TrackedCollection, error) {
	var collections []*models.TrackedCollection
	for rows.Next() {
		var c models.TrackedCollection
		var checkpoint sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Blockchain, &c.Marketplace,
			&c.Address, &c.Name, &checkpoint); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan collection row", err.Error())
		}
		if checkpoint.Valid {
			if parsed, err := time.Parse(checkpointLayout, checkpoint.String); err == nil {
				c.LastCheckpoint = &parsed
			}
		}
		collections = append(collections, &c)
	}
	return collections, rows.Err()
}

func decodeSettings(raw string) (models.Settings, error) {
	settings := models.DefaultSettings()
	if raw == "" || raw == "{}" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return models.Settings{}, utils.NewAppError(utils.ErrCodeDatabase, "Failed to decode settings", err.Error())
	}
	if !settings.AlertType.Valid() {
		settings.AlertType = models.AlertAll
	}
	if !settings.UpdateFrequency.Valid() {
		settings.UpdateFrequency = models.FrequencyInstant
	}
	return settings, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
