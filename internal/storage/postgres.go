package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/models"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *Config
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *Config) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes the database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	if s.config.MaxConnections > 0 {
		db.SetMaxOpenConns(s.config.MaxConnections)
		db.SetMaxIdleConns(s.config.MaxConnections / 2)
	}
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")
	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
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
func (s *PostgreSQLStorage) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, first_name, username)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			username = EXCLUDED.username
	`, user.ID, user.FirstName, user.Username)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert user", err.Error())
	}
	return nil
}

// GetSettings returns the user's settings with defaults applied.
func (s *PostgreSQLStorage) GetSettings(ctx context.Context, userID int64) (models.Settings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT settings FROM users WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get settings", err.Error())
	}
	return decodeSettings(raw)
}

// SetSettings replaces the user's settings.
func (s *PostgreSQLStorage) SetSettings(ctx context.Context, userID int64, settings models.Settings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to encode settings", err.Error())
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET settings = $1 WHERE user_id = $2`, string(encoded), userID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set settings", err.Error())
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCollection adds a tracked collection.
func (s *PostgreSQLStorage) AddCollection(ctx context.Context, collection *models.TrackedCollection) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tracked_collections
		(user_id, blockchain, marketplace, collection_address, collection_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, collection.UserID, collection.Blockchain, collection.Marketplace,
		collection.Address, nullable(collection.Name)).Scan(&collection.ID)
	if err != nil {
		if isPQUniqueViolation(err) {
			return ErrAlreadyTracked
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to add collection", err.Error())
	}
	return nil
}

// RemoveCollection removes a user's tracked collection.
func (s *PostgreSQLStorage) RemoveCollection(ctx context.Context, userID int64, blockchain, address string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tracked_collections
		WHERE user_id = $1 AND blockchain = $2 AND collection_address = $3
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
func (s *PostgreSQLStorage) ListUserCollections(ctx context.Context, userID int64) ([]*models.TrackedCollection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, blockchain, marketplace, collection_address,
		       COALESCE(collection_name, ''), last_checkpoint
		FROM tracked_collections
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list user collections", err.Error())
	}
	defer rows.Close()

	return scanCollections(rows)
}

// ListTrackedCollections returns the distinct tracked collection set.
func (s *PostgreSQLStorage) ListTrackedCollections(ctx context.Context) ([]*models.TrackedCollection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(id), 0::BIGINT, blockchain, marketplace, collection_address,
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

// ListCollectionTrackers returns every user tracking a collection.
func (s *PostgreSQLStorage) ListCollectionTrackers(ctx context.Context, blockchain, address string) ([]models.CollectionTracker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tc.user_id, u.settings
		FROM tracked_collections tc
		JOIN users u ON tc.user_id = u.user_id
		WHERE tc.blockchain = $1 AND tc.collection_address = $2
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

// GetCheckpoint returns the shared checkpoint for a collection.
func (s *PostgreSQLStorage) GetCheckpoint(ctx context.Context, blockchain, address string) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT last_checkpoint FROM tracked_collections
		WHERE blockchain = $1 AND collection_address = $2
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

// SetCheckpoint updates the shared checkpoint for a collection.
func (s *PostgreSQLStorage) SetCheckpoint(ctx context.Context, blockchain, address string, checkpoint time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracked_collections SET last_checkpoint = $1
		WHERE blockchain = $2 AND collection_address = $3
	`, checkpoint.UTC().Format(checkpointLayout), blockchain, address)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set checkpoint", err.Error())
	}
	return nil
}

// RecordTransaction inserts a transaction idempotently.
func (s *PostgreSQLStorage) RecordTransaction(ctx context.Context, tx *models.Transaction) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transaction_history
		(blockchain, marketplace, collection_address, token_id, transaction_type,
		 price, currency, buyer, seller, timestamp, transaction_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, tx.Blockchain, tx.Marketplace, tx.Address, tx.TokenID, string(tx.Type),
		tx.Price, tx.Currency, tx.Buyer, tx.Seller,
		tx.Timestamp.UTC().Format(checkpointLayout), tx.Hash).Scan(&id)
	if err != nil {
		if isPQUniqueViolation(err) {
			return 0, ErrAlreadyRecorded
		}
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to record transaction", err.Error())
	}
	return id, nil
}

func isPQUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
