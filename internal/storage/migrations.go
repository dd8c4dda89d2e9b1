package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					user_id INTEGER PRIMARY KEY,
					first_name TEXT,
					username TEXT,
					settings TEXT DEFAULT '{}'
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create tracked_collections table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tracked_collections (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL,
					blockchain TEXT NOT NULL,
					marketplace TEXT NOT NULL,
					collection_address TEXT NOT NULL,
					collection_name TEXT,
					last_checkpoint TEXT,
					FOREIGN KEY (user_id) REFERENCES users (user_id),
					UNIQUE (user_id, blockchain, collection_address)
				);

				CREATE INDEX IF NOT EXISTS idx_collections_lookup
					ON tracked_collections(blockchain, collection_address);
			`,
		},
		{
			Version:     "003",
			Description: "Create transaction_history table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transaction_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					blockchain TEXT NOT NULL,
					marketplace TEXT NOT NULL,
					collection_address TEXT NOT NULL,
					token_id TEXT NOT NULL,
					transaction_type TEXT NOT NULL,
					price REAL,
					currency TEXT,
					buyer TEXT,
					seller TEXT,
					timestamp TEXT,
					transaction_hash TEXT,
					UNIQUE (blockchain, transaction_hash, token_id)
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_collection
					ON transaction_history(blockchain, collection_address);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					user_id BIGINT PRIMARY KEY,
					first_name TEXT,
					username TEXT,
					settings TEXT DEFAULT '{}'
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create tracked_collections table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tracked_collections (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(user_id),
					blockchain TEXT NOT NULL,
					marketplace TEXT NOT NULL,
					collection_address TEXT NOT NULL,
					collection_name TEXT,
					last_checkpoint TEXT,
					UNIQUE (user_id, blockchain, collection_address)
				);

				CREATE INDEX IF NOT EXISTS idx_collections_lookup
					ON tracked_collections(blockchain, collection_address);
			`,
		},
		{
			Version:     "003",
			Description: "Create transaction_history table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transaction_history (
					id BIGSERIAL PRIMARY KEY,
					blockchain TEXT NOT NULL,
					marketplace TEXT NOT NULL,
					collection_address TEXT NOT NULL,
					token_id TEXT NOT NULL,
					transaction_type TEXT NOT NULL,
					price DOUBLE PRECISION,
					currency TEXT,
					buyer TEXT,
					seller TEXT,
					timestamp TEXT,
					transaction_hash TEXT,
					UNIQUE (blockchain, transaction_hash, token_id)
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_collection
					ON transaction_history(blockchain, collection_address);
			`,
		},
	}
}
