package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
	"log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
	"time"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

const (
	//Accounts (local publishing actors)
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts(
                        id uuid NOT NULL PRIMARY KEY,
                        username varchar(100) UNIQUE NOT NULL,
                        display_name varchar(255),
                        summary text,
                        web_public_key text,
                        web_private_key text,
                        created_at timestamp default current_timestamp
                        )`
	sqlInsertAccount           = `INSERT INTO accounts(id, username, display_name, summary, web_public_key, web_private_key, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAccountByUsername = `SELECT id, username, display_name, summary, web_public_key, web_private_key, created_at FROM accounts WHERE username = ?`
	sqlSelectAccountById       = `SELECT id, username, display_name, summary, web_public_key, web_private_key, created_at FROM accounts WHERE id = ?`

	//Posts (content mirror carrying the federation state marker)
	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts(
                        id integer NOT NULL PRIMARY KEY,
                        author_id uuid NOT NULL,
                        post_type varchar(50) default 'post',
                        title varchar(500),
                        content text,
                        excerpt text,
                        status varchar(20) default '',
                        visibility varchar(20) default 'public',
                        federation_state varchar(20) default 'unfederated',
                        sticky integer default 0,
                        comments_open integer default 1,
                        published_at timestamp,
                        modified_at timestamp,
                        event_start timestamp,
                        event_end timestamp
                        )`
	sqlUpsertPost = `INSERT INTO posts(id, author_id, post_type, title, content, excerpt, status, visibility, federation_state, sticky, comments_open, published_at, modified_at, event_start, event_end)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(id) DO UPDATE SET
                        title = excluded.title,
                        content = excluded.content,
                        excerpt = excluded.excerpt,
                        status = excluded.status,
                        visibility = excluded.visibility,
                        sticky = excluded.sticky,
                        comments_open = excluded.comments_open,
                        modified_at = excluded.modified_at,
                        event_start = excluded.event_start,
                        event_end = excluded.event_end`
	sqlSelectPostById          = `SELECT id, author_id, post_type, title, content, excerpt, status, visibility, federation_state, sticky, comments_open, published_at, modified_at, event_start, event_end FROM posts WHERE id = ?`
	sqlUpdateFederationState   = `UPDATE posts SET federation_state = ? WHERE id = ?`
	sqlSelectFederatedByAuthor = `SELECT id, author_id, post_type, title, content, excerpt, status, visibility, federation_state, sticky, comments_open, published_at, modified_at, event_start, event_end FROM posts
                        WHERE author_id = ? AND federation_state = 'federated' AND status = 'publish'
                        ORDER BY published_at DESC LIMIT ?`
	sqlSelectStickyByAuthor = `SELECT id, author_id, post_type, title, content, excerpt, status, visibility, federation_state, sticky, comments_open, published_at, modified_at, event_start, event_end FROM posts
                        WHERE author_id = ? AND sticky = 1 AND status = 'publish'
                        ORDER BY published_at DESC`
)

func (db *DB) CreateAccount(username string, displayName string, summary string, keypair *util.RsaKeyPair) (error, *domain.Account) {
	acc := &domain.Account{
		Id:            uuid.New(),
		Username:      username,
		DisplayName:   displayName,
		Summary:       summary,
		WebPublicKey:  keypair.Public,
		WebPrivateKey: keypair.Private,
		CreatedAt:     time.Now(),
	}
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount, acc.Id, acc.Username, acc.DisplayName, acc.Summary, acc.WebPublicKey, acc.WebPrivateKey, acc.CreatedAt)
		return err
	})
	if err != nil {
		log.Println("Creating new account failed: ", err)
		return err, nil
	}
	return nil, acc
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.Account) {
	row := db.db.QueryRow(sqlSelectAccountByUsername, username)
	var tempAcc domain.Account
	err := row.Scan(&tempAcc.Id, &tempAcc.Username, &tempAcc.DisplayName, &tempAcc.Summary, &tempAcc.WebPublicKey, &tempAcc.WebPrivateKey, &tempAcc.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &tempAcc
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	row := db.db.QueryRow(sqlSelectAccountById, id)
	var tempAcc domain.Account
	err := row.Scan(&tempAcc.Id, &tempAcc.Username, &tempAcc.DisplayName, &tempAcc.Summary, &tempAcc.WebPublicKey, &tempAcc.WebPrivateKey, &tempAcc.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &tempAcc
}

// ReadPrivateKey returns the PEM signing key of a local actor
func (db *DB) ReadPrivateKey(actorId uuid.UUID) (error, string) {
	err, acc := db.ReadAccById(actorId)
	if err != nil {
		return err, ""
	}
	return nil, acc.WebPrivateKey
}

func (db *DB) UpsertPost(post *domain.Post) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertPost,
			post.Id,
			post.AuthorId.String(),
			post.Type,
			post.Title,
			post.Content,
			post.Excerpt,
			string(post.Status),
			string(post.Visibility),
			string(post.FederationState),
			post.Sticky,
			post.CommentsOpen,
			post.PublishedAt,
			post.ModifiedAt,
			post.EventStart,
			post.EventEnd,
		)
		return err
	})
}

func (db *DB) ReadPostById(id int64) (error, *domain.Post) {
	row := db.db.QueryRow(sqlSelectPostById, id)
	return scanPost(row)
}

func (db *DB) UpdateFederationState(postId int64, state domain.FederationState) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFederationState, string(state), postId)
		return err
	})
}

func (db *DB) ReadFederatedPostsByAuthor(authorId uuid.UUID, limit int) (error, *[]domain.Post) {
	rows, err := db.db.Query(sqlSelectFederatedByAuthor, authorId.String(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (db *DB) ReadStickyPostsByAuthor(authorId uuid.UUID) (error, *[]domain.Post) {
	rows, err := db.db.Query(sqlSelectStickyByAuthor, authorId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return scanPosts(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (error, *domain.Post) {
	var post domain.Post
	var authorIdStr, status, visibility, fedState string
	var eventStart, eventEnd sql.NullTime
	err := row.Scan(
		&post.Id,
		&authorIdStr,
		&post.Type,
		&post.Title,
		&post.Content,
		&post.Excerpt,
		&status,
		&visibility,
		&fedState,
		&post.Sticky,
		&post.CommentsOpen,
		&post.PublishedAt,
		&post.ModifiedAt,
		&eventStart,
		&eventEnd,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	post.AuthorId, _ = uuid.Parse(authorIdStr)
	post.Status = domain.EntityStatus(status)
	post.Visibility = domain.Visibility(visibility)
	post.FederationState = domain.FederationState(fedState)
	if eventStart.Valid {
		post.EventStart = &eventStart.Time
	}
	if eventEnd.Valid {
		post.EventEnd = &eventEnd.Time
	}
	return nil, &post
}

func scanPosts(rows *sql.Rows) (error, *[]domain.Post) {
	var posts []domain.Post
	for rows.Next() {
		err, post := scanPost(rows)
		if err != nil {
			return err, &posts
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return err, &posts
	}
	return nil, &posts
}

func GetDB() *DB {
	dbOnce.Do(func() {
		// Open database connection
		db, err := sql.Open("sqlite", "database.db")
		if err != nil {
			panic(err)
		}

		// Configure connection pool for concurrent access
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)

		// Try to enable WAL2 mode, fall back to WAL if not supported
		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode)
		if err != nil || journalMode == "delete" {
			// WAL2 not supported, try regular WAL
			err = db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
			if err != nil {
				log.Printf("Warning: Failed to enable WAL mode: %v", err)
			} else {
				log.Printf("Database journal mode: %s (WAL2 not supported, using WAL)", journalMode)
			}
		} else {
			log.Printf("Database journal mode: %s", journalMode)
		}

		// Optimize PRAGMAs for the concurrent delivery workload
		db.Exec("PRAGMA synchronous = NORMAL")
		db.Exec("PRAGMA cache_size = -64000")
		db.Exec("PRAGMA temp_store = MEMORY")
		db.Exec("PRAGMA busy_timeout = 5000")
		db.Exec("PRAGMA foreign_keys = ON")
		db.Exec("PRAGMA auto_vacuum = INCREMENTAL")

		log.Printf("Database initialized with connection pooling (max 25 connections)")

		dbInstance = &DB{db: db}

		// Run initial schema setup
		err2 := dbInstance.CreateDB()
		if err2 != nil {
			panic(err2)
		}
	})

	return dbInstance
}

// CreateDB creates the base tables.
func (db *DB) CreateDB() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlCreateAccountsTable); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlCreatePostsTable); err != nil {
			return err
		}
		return nil
	})
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			log.Printf("error in transaction: %s", err)
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}

// Follower queries
const (
	sqlInsertFollower = `INSERT INTO followers(id, local_id, actor_iri, actor_type, username, display_name, summary, url, inbox_uri, shared_inbox_uri, icon_url, public_key_id, public_key_pem, errors_json, created_at, updated_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateFollowerByIRI = `UPDATE followers SET actor_type = ?, username = ?, display_name = ?, summary = ?, url = ?, inbox_uri = ?, shared_inbox_uri = ?, icon_url = ?, public_key_id = ?, public_key_pem = ?, updated_at = ? WHERE actor_iri = ?`
	sqlSelectFollowerByIRI = `SELECT id, local_id, actor_iri, actor_type, username, display_name, summary, url, inbox_uri, shared_inbox_uri, icon_url, public_key_id, public_key_pem, errors_json, created_at, updated_at FROM followers WHERE actor_iri = ?`
	sqlSelectFollowersByLocalId = `SELECT id, local_id, actor_iri, actor_type, username, display_name, summary, url, inbox_uri, shared_inbox_uri, icon_url, public_key_id, public_key_pem, errors_json, created_at, updated_at FROM followers WHERE local_id = ? ORDER BY created_at ASC`
	sqlUpdateFollowerErrors     = `UPDATE followers SET errors_json = ?, updated_at = ? WHERE id = ?`
	sqlAppendFollowerError      = `UPDATE followers SET errors_json = json_insert(COALESCE(NULLIF(errors_json, ''), '[]'), '$[#]', json(?)), updated_at = ? WHERE id = ?`
	sqlCountFollowerErrors      = `SELECT json_array_length(COALESCE(NULLIF(errors_json, ''), '[]')) FROM followers WHERE id = ?`
	sqlDeleteFollowerByIRI      = `DELETE FROM followers WHERE actor_iri = ? AND local_id = ?`
)

// SaveFollower persists a follower, deduplicating by actor IRI: a second
// save for the same IRI updates the existing record in place. Invalid
// followers are rejected before any row is touched.
func (db *DB) SaveFollower(f *domain.Follower) (error, uuid.UUID) {
	if !f.Valid() {
		return fmt.Errorf("follower %s missing required attributes", f.ID), uuid.Nil
	}

	err, existing := db.ReadFollowerByIRI(f.ID)
	if err == nil && existing != nil {
		// Update in place, keep record id and error history
		updateErr := db.wrapTransaction(func(tx *sql.Tx) error {
			_, err := tx.Exec(sqlUpdateFollowerByIRI,
				f.Type,
				f.PreferredUsername,
				f.Name,
				f.Summary,
				f.URL,
				f.Inbox,
				f.SharedInbox(),
				iconURL(&f.Actor),
				f.PublicKey.ID,
				f.PublicKey.PublicKeyPem,
				time.Now(),
				f.ID,
			)
			return err
		})
		if updateErr != nil {
			return updateErr, uuid.Nil
		}
		return nil, existing.RecordID
	}

	recordId := uuid.New()
	now := time.Now()
	insertErr := db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollower,
			recordId.String(),
			f.LocalID.String(),
			f.ID,
			f.Type,
			f.PreferredUsername,
			f.Name,
			f.Summary,
			f.URL,
			f.Inbox,
			f.SharedInbox(),
			iconURL(&f.Actor),
			f.PublicKey.ID,
			f.PublicKey.PublicKeyPem,
			marshalErrors(f.Errors),
			now,
			now,
		)
		return err
	})
	if insertErr != nil {
		return insertErr, uuid.Nil
	}
	return nil, recordId
}

func (db *DB) ReadFollowerByIRI(iri string) (error, *domain.Follower) {
	row := db.db.QueryRow(sqlSelectFollowerByIRI, iri)
	return scanFollower(row)
}

func (db *DB) ReadFollowersByLocalId(localId uuid.UUID) (error, *[]domain.Follower) {
	rows, err := db.db.Query(sqlSelectFollowersByLocalId, localId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var followers []domain.Follower
	for rows.Next() {
		err, f := scanFollower(rows)
		if err != nil {
			return err, &followers
		}
		followers = append(followers, *f)
	}
	if err = rows.Err(); err != nil {
		return err, &followers
	}
	return nil, &followers
}

// ReplaceFollowerErrors atomically replaces a follower's error list
func (db *DB) ReplaceFollowerErrors(recordId uuid.UUID, errors []domain.DeliveryError) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFollowerErrors, marshalErrors(errors), time.Now(), recordId.String())
		return err
	})
}

// AppendFollowerError appends one entry to a follower's error list inside
// the database, so concurrent delivery workers never overwrite each other's
// entries. Returns the resulting list length.
func (db *DB) AppendFollowerError(recordId uuid.UUID, deliveryErr domain.DeliveryError) (error, int) {
	entry, err := json.Marshal(deliveryErr)
	if err != nil {
		return err, 0
	}

	count := 0
	txErr := db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlAppendFollowerError, string(entry), time.Now(), recordId.String()); err != nil {
			return err
		}
		return tx.QueryRow(sqlCountFollowerErrors, recordId.String()).Scan(&count)
	})
	if txErr != nil {
		return txErr, 0
	}
	return nil, count
}

// ClearFollowerErrors wipes the error list after a successful delivery
func (db *DB) ClearFollowerErrors(recordId uuid.UUID) error {
	return db.ReplaceFollowerErrors(recordId, nil)
}

func (db *DB) DeleteFollowerByIRI(iri string, localId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowerByIRI, iri, localId.String())
		return err
	})
}

func scanFollower(row rowScanner) (error, *domain.Follower) {
	var f domain.Follower
	var recordIdStr, localIdStr, sharedInbox, iconUrl, errorsJSON string
	err := row.Scan(
		&recordIdStr,
		&localIdStr,
		&f.ID,
		&f.Type,
		&f.PreferredUsername,
		&f.Name,
		&f.Summary,
		&f.URL,
		&f.Inbox,
		&sharedInbox,
		&iconUrl,
		&f.PublicKey.ID,
		&f.PublicKey.PublicKeyPem,
		&errorsJSON,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	f.RecordID, _ = uuid.Parse(recordIdStr)
	f.LocalID, _ = uuid.Parse(localIdStr)
	f.PublicKey.Owner = f.ID
	if sharedInbox != "" {
		f.Endpoints = &domain.Endpoints{SharedInbox: sharedInbox}
	}
	if iconUrl != "" {
		f.Icon = &domain.ActorImage{Type: "Image", URL: iconUrl}
	}
	if errorsJSON != "" {
		if err := json.Unmarshal([]byte(errorsJSON), &f.Errors); err != nil {
			log.Printf("Warning: Failed to parse follower errors for %s: %v", f.ID, err)
		}
	}
	return nil, &f
}

func marshalErrors(errors []domain.DeliveryError) string {
	if len(errors) == 0 {
		return ""
	}
	b, err := json.Marshal(errors)
	if err != nil {
		log.Printf("Warning: Failed to marshal follower errors: %v", err)
		return ""
	}
	return string(b)
}

func iconURL(a *domain.Actor) string {
	if a.Icon == nil {
		return ""
	}
	return a.Icon.URL
}
