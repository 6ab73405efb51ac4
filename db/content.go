package db

import (
	"database/sql"
	"time"

	"github.com/fedpress/fedpress/domain"
	"github.com/google/uuid"
)

// Attachment, term and comment queries
const (
	sqlUpsertAttachment = `INSERT INTO attachments(id, post_id, mime_type, url, alt_text)
                        VALUES (?, ?, ?, ?, ?)
                        ON CONFLICT(id) DO UPDATE SET
                        mime_type = excluded.mime_type,
                        url = excluded.url,
                        alt_text = excluded.alt_text`
	sqlSelectAttachmentById = `SELECT id, post_id, mime_type, url, alt_text FROM attachments WHERE id = ?`

	sqlUpsertTerm = `INSERT INTO terms(id, taxonomy, name, slug)
                        VALUES (?, ?, ?, ?)
                        ON CONFLICT(id) DO UPDATE SET
                        taxonomy = excluded.taxonomy,
                        name = excluded.name,
                        slug = excluded.slug`
	sqlSelectTermById = `SELECT id, taxonomy, name, slug FROM terms WHERE id = ?`

	sqlUpsertComment = `INSERT INTO comments(id, post_id, author_id, author_name, content, status, created_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(id) DO UPDATE SET
                        content = excluded.content,
                        status = excluded.status`
	sqlSelectCommentById = `SELECT id, post_id, author_id, author_name, content, status, created_at FROM comments WHERE id = ?`
)

func (db *DB) UpsertAttachment(att *domain.Attachment) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertAttachment, att.Id, att.PostId, att.MimeType, att.URL, att.AltText)
		return err
	})
}

func (db *DB) ReadAttachmentById(id int64) (error, *domain.Attachment) {
	row := db.db.QueryRow(sqlSelectAttachmentById, id)
	var att domain.Attachment
	err := row.Scan(&att.Id, &att.PostId, &att.MimeType, &att.URL, &att.AltText)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &att
}

func (db *DB) UpsertTerm(term *domain.Term) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertTerm, term.Id, term.Taxonomy, term.Name, term.Slug)
		return err
	})
}

func (db *DB) ReadTermById(id int64) (error, *domain.Term) {
	row := db.db.QueryRow(sqlSelectTermById, id)
	var term domain.Term
	err := row.Scan(&term.Id, &term.Taxonomy, &term.Name, &term.Slug)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &term
}

func (db *DB) UpsertComment(comment *domain.Comment) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertComment,
			comment.Id,
			comment.PostId,
			comment.AuthorId.String(),
			comment.AuthorName,
			comment.Content,
			string(comment.Status),
			comment.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadCommentById(id int64) (error, *domain.Comment) {
	row := db.db.QueryRow(sqlSelectCommentById, id)
	var comment domain.Comment
	var authorIdStr, status string
	var createdAt time.Time
	err := row.Scan(&comment.Id, &comment.PostId, &authorIdStr, &comment.AuthorName, &comment.Content, &status, &createdAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	comment.AuthorId, _ = uuid.Parse(authorIdStr)
	comment.Status = domain.EntityStatus(status)
	comment.CreatedAt = createdAt
	return nil, &comment
}
