package db

import (
	"database/sql"
	"log"
)

// SQL for the federation tables
const (
	// Followers table, one row per remote actor per local actor,
	// deduplicated on the actor IRI
	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers (
		id TEXT NOT NULL PRIMARY KEY,
		local_id TEXT NOT NULL,
		actor_iri TEXT UNIQUE NOT NULL,
		actor_type TEXT DEFAULT 'Person',
		username TEXT NOT NULL,
		display_name TEXT,
		summary TEXT,
		url TEXT,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		icon_url TEXT,
		public_key_id TEXT NOT NULL,
		public_key_pem TEXT NOT NULL,
		errors_json TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateFollowersIndices = `
		CREATE INDEX IF NOT EXISTS idx_followers_local_id ON followers(local_id);
		CREATE INDEX IF NOT EXISTS idx_followers_actor_iri ON followers(actor_iri);
	`

	// Outbox queue table
	sqlCreateOutboxTable = `CREATE TABLE IF NOT EXISTS outbox_items (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		object_iri TEXT,
		status TEXT DEFAULT 'pending',
		attempts INTEGER DEFAULT 0,
		last_error TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateOutboxIndices = `
		CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_items(status);
		CREATE INDEX IF NOT EXISTS idx_outbox_actor_id ON outbox_items(actor_id);
		CREATE INDEX IF NOT EXISTS idx_outbox_created_at ON outbox_items(created_at);
	`

	// Content mirror tables
	sqlCreateAttachmentsTable = `CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER NOT NULL PRIMARY KEY,
		post_id INTEGER NOT NULL,
		mime_type TEXT,
		url TEXT NOT NULL,
		alt_text TEXT
	)`

	sqlCreateTermsTable = `CREATE TABLE IF NOT EXISTS terms (
		id INTEGER NOT NULL PRIMARY KEY,
		taxonomy TEXT NOT NULL,
		name TEXT NOT NULL,
		slug TEXT NOT NULL
	)`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments (
		id INTEGER NOT NULL PRIMARY KEY,
		post_id INTEGER NOT NULL,
		author_id TEXT,
		author_name TEXT,
		content TEXT,
		status TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateContentIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
		CREATE INDEX IF NOT EXISTS idx_posts_federation_state ON posts(federation_state);
		CREATE INDEX IF NOT EXISTS idx_attachments_post_id ON attachments(post_id);
		CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateFollowersTable, "followers"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateOutboxTable, "outbox_items"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateAttachmentsTable, "attachments"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateTermsTable, "terms"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateCommentsTable, "comments"); err != nil {
			return err
		}

		// Create indices
		if _, err := tx.Exec(sqlCreateFollowersIndices); err != nil {
			log.Printf("Warning: Failed to create followers indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateOutboxIndices); err != nil {
			log.Printf("Warning: Failed to create outbox indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateContentIndices); err != nil {
			log.Printf("Warning: Failed to create content indices: %v", err)
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	log.Printf("Table %s created or already exists", tableName)
	return nil
}
