package db

import (
	"database/sql"
	"time"

	"github.com/fedpress/fedpress/domain"
	"github.com/google/uuid"
)

// Outbox queries
const (
	sqlInsertOutboxItem = `INSERT INTO outbox_items(id, actor_id, activity_type, activity_json, object_iri, status, attempts, last_error, created_at, updated_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingOutboxIds = `SELECT id FROM outbox_items WHERE status = 'pending' ORDER BY created_at ASC LIMIT ?`
	sqlClaimOutboxItem        = `UPDATE outbox_items SET status = 'processing', attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = 'pending'`
	sqlSelectOutboxItemById   = `SELECT id, actor_id, activity_type, activity_json, object_iri, status, attempts, last_error, created_at, updated_at FROM outbox_items WHERE id = ?`
	sqlFinalizeOutboxItem     = `UPDATE outbox_items SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
	sqlSelectOutboxByStatus   = `SELECT id, actor_id, activity_type, activity_json, object_iri, status, attempts, last_error, created_at, updated_at FROM outbox_items WHERE status = ? ORDER BY created_at DESC LIMIT ?`
	sqlSelectOutboxByActor    = `SELECT id, actor_id, activity_type, activity_json, object_iri, status, attempts, last_error, created_at, updated_at FROM outbox_items WHERE actor_id = ? AND status = 'complete' ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlCountOutboxByActor     = `SELECT COUNT(*) FROM outbox_items WHERE actor_id = ? AND status = 'complete'`
	sqlSelectAllOutboxItems   = `SELECT id, actor_id, activity_type, activity_json, object_iri, status, attempts, last_error, created_at, updated_at FROM outbox_items ORDER BY created_at DESC LIMIT ?`
	sqlPruneCompletedOutbox   = `DELETE FROM outbox_items WHERE status = 'complete' AND updated_at < ?`
)

func (db *DB) InsertOutboxItem(item *domain.OutboxItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertOutboxItem,
			item.Id.String(),
			item.ActorId.String(),
			item.ActivityType,
			item.ActivityJSON,
			item.ObjectIRI,
			string(item.Status),
			item.Attempts,
			item.LastError,
			item.CreatedAt,
			item.UpdatedAt,
		)
		return err
	})
}

// ClaimOutboxItems claims up to limit pending items for one dispatcher.
// The claim is a conditional update guarded on the current status; a row
// another dispatcher already moved to processing reports zero affected
// rows and is skipped, so no item is ever claimed twice.
func (db *DB) ClaimOutboxItems(limit int) (error, *[]domain.OutboxItem) {
	rows, err := db.db.Query(sqlSelectPendingOutboxIds, limit)
	if err != nil {
		return err, nil
	}
	var candidateIds []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err, nil
		}
		candidateIds = append(candidateIds, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err, nil
	}
	rows.Close()

	var claimed []domain.OutboxItem
	for _, id := range candidateIds {
		res, err := db.db.Exec(sqlClaimOutboxItem, time.Now(), id)
		if err != nil {
			return err, &claimed
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err, &claimed
		}
		if affected == 0 {
			// Another dispatcher won the claim, not an error
			continue
		}
		err, item := db.readOutboxItem(id)
		if err != nil {
			return err, &claimed
		}
		claimed = append(claimed, *item)
	}
	return nil, &claimed
}

func (db *DB) MarkOutboxComplete(id uuid.UUID) error {
	return db.finalizeOutboxItem(id, domain.OutboxComplete, "")
}

func (db *DB) MarkOutboxFailed(id uuid.UUID, message string) error {
	return db.finalizeOutboxItem(id, domain.OutboxFailed, message)
}

func (db *DB) finalizeOutboxItem(id uuid.UUID, status domain.OutboxStatus, message string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlFinalizeOutboxItem, string(status), message, time.Now(), id.String())
		return err
	})
}

func (db *DB) ReadOutboxItemById(id uuid.UUID) (error, *domain.OutboxItem) {
	return db.readOutboxItem(id.String())
}

func (db *DB) readOutboxItem(id string) (error, *domain.OutboxItem) {
	row := db.db.QueryRow(sqlSelectOutboxItemById, id)
	return scanOutboxItem(row)
}

func (db *DB) ReadOutboxItemsByStatus(status domain.OutboxStatus, limit int) (error, *[]domain.OutboxItem) {
	rows, err := db.db.Query(sqlSelectOutboxByStatus, string(status), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return scanOutboxItems(rows)
}

func (db *DB) ReadOutboxItems(limit int) (error, *[]domain.OutboxItem) {
	rows, err := db.db.Query(sqlSelectAllOutboxItems, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return scanOutboxItems(rows)
}

func (db *DB) ReadCompletedOutboxByActor(actorId uuid.UUID, limit int, offset int) (error, *[]domain.OutboxItem) {
	rows, err := db.db.Query(sqlSelectOutboxByActor, actorId.String(), limit, offset)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return scanOutboxItems(rows)
}

func (db *DB) CountCompletedOutboxByActor(actorId uuid.UUID) (error, int) {
	row := db.db.QueryRow(sqlCountOutboxByActor, actorId.String())
	var count int
	if err := row.Scan(&count); err != nil {
		return err, 0
	}
	return nil, count
}

// PruneCompletedOutbox removes completed items older than the cutoff
func (db *DB) PruneCompletedOutbox(olderThan time.Time) (error, int64) {
	var pruned int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlPruneCompletedOutbox, olderThan)
		if err != nil {
			return err
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	return err, pruned
}

func scanOutboxItem(row rowScanner) (error, *domain.OutboxItem) {
	var item domain.OutboxItem
	var idStr, actorIdStr, status string
	err := row.Scan(
		&idStr,
		&actorIdStr,
		&item.ActivityType,
		&item.ActivityJSON,
		&item.ObjectIRI,
		&status,
		&item.Attempts,
		&item.LastError,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	item.Id, _ = uuid.Parse(idStr)
	item.ActorId, _ = uuid.Parse(actorIdStr)
	item.Status = domain.OutboxStatus(status)
	return nil, &item
}

func scanOutboxItems(rows *sql.Rows) (error, *[]domain.OutboxItem) {
	var items []domain.OutboxItem
	for rows.Next() {
		err, item := scanOutboxItem(rows)
		if err != nil {
			return err, &items
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}
