package web

import (
	"log"
	"net/http"
	"time"

	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/gin-gonic/gin"
)

// TriageFlags mirrors domain.TriageContext on the wire
type TriageFlags struct {
	IsImport           bool     `json:"isImport"`
	IsBulkEdit         bool     `json:"isBulkEdit"`
	FederationDisabled bool     `json:"federationDisabled"`
	ChangedFields      []string `json:"changedFields"`
}

func (tf TriageFlags) toContext() domain.TriageContext {
	return domain.TriageContext{
		IsImport:           tf.IsImport,
		IsBulkEdit:         tf.IsBulkEdit,
		FederationDisabled: tf.FederationDisabled,
		ChangedFields:      tf.ChangedFields,
	}
}

// PostRequest is one post mutation reported by the content source
type PostRequest struct {
	Id           int64       `json:"id" binding:"required"`
	Author       string      `json:"author" binding:"required"`
	Type         string      `json:"type"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	Excerpt      string      `json:"excerpt"`
	Status       string      `json:"status" binding:"required"`
	Visibility   string      `json:"visibility"`
	Sticky       bool        `json:"sticky"`
	CommentsOpen bool        `json:"commentsOpen"`
	EventStart   *time.Time  `json:"eventStart"`
	EventEnd     *time.Time  `json:"eventEnd"`
	Context      TriageFlags `json:"context"`
}

// AttachmentRequest is one attachment mutation. Action selects the
// lifecycle step: "add", "edit" or "delete".
type AttachmentRequest struct {
	Id      int64       `json:"id" binding:"required"`
	PostId  int64       `json:"postId" binding:"required"`
	Mime    string      `json:"mimeType"`
	URL     string      `json:"url"`
	AltText string      `json:"altText"`
	Author  string      `json:"author" binding:"required"`
	Action  string      `json:"action" binding:"required"`
	Context TriageFlags `json:"context"`
}

// TermRequest is one taxonomy term mutation
type TermRequest struct {
	Id        int64       `json:"id" binding:"required"`
	Taxonomy  string      `json:"taxonomy" binding:"required"`
	Name      string      `json:"name"`
	Slug      string      `json:"slug"`
	Author    string      `json:"author" binding:"required"`
	Status    string      `json:"status" binding:"required"`
	OldStatus string      `json:"oldStatus"`
	Context   TriageFlags `json:"context"`
}

// CommentRequest is one comment mutation
type CommentRequest struct {
	Id         int64       `json:"id" binding:"required"`
	PostId     int64       `json:"postId" binding:"required"`
	AuthorName string      `json:"authorName"`
	Content    string      `json:"content"`
	Author     string      `json:"author" binding:"required"`
	Status     string      `json:"status" binding:"required"`
	OldStatus  string      `json:"oldStatus"`
	Context    TriageFlags `json:"context"`
}

// HandlePostUpsert records a post mutation and reports it for triage
func HandlePostUpsert(c *gin.Context, conf *util.AppConfig, events chan<- domain.LifecycleEvent) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	database := db.GetDB()

	err, acc := database.ReadAccByUsername(req.Author)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown author"})
		return
	}

	oldStatus := domain.StatusNone
	wasSticky := false
	if err, prev := database.ReadPostById(req.Id); err == nil && prev != nil {
		oldStatus = prev.Status
		wasSticky = prev.Sticky
	}

	postType := req.Type
	if postType == "" {
		postType = "post"
	}
	visibility := domain.Visibility(req.Visibility)
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}

	post := &domain.Post{
		Id:           req.Id,
		AuthorId:     acc.Id,
		Type:         postType,
		Title:        req.Title,
		Content:      req.Content,
		Excerpt:      req.Excerpt,
		Status:       domain.EntityStatus(req.Status),
		Visibility:   visibility,
		Sticky:       req.Sticky,
		CommentsOpen: req.CommentsOpen,
		PublishedAt:  time.Now().UTC(),
		ModifiedAt:   time.Now().UTC(),
		EventStart:   req.EventStart,
		EventEnd:     req.EventEnd,
	}

	if err := database.UpsertPost(post); err != nil {
		log.Printf("Content: Failed to upsert post %d: %v", req.Id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store post"})
		return
	}

	events <- domain.LifecycleEvent{
		Kind:          domain.KindPost,
		EntityId:      post.Id,
		ActorId:       acc.Id,
		NewStatus:     post.Status,
		OldStatus:     oldStatus,
		Visibility:    post.Visibility,
		StickyChanged: wasSticky != post.Sticky,
		NowSticky:     post.Sticky,
		Context:       req.Context.toContext(),
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// HandleAttachmentUpsert records an attachment mutation for triage
func HandleAttachmentUpsert(c *gin.Context, conf *util.AppConfig, events chan<- domain.LifecycleEvent) {
	var req AttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	database := db.GetDB()

	err, acc := database.ReadAccByUsername(req.Author)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown author"})
		return
	}

	if req.Action != "delete" {
		att := &domain.Attachment{
			Id:       req.Id,
			PostId:   req.PostId,
			MimeType: req.Mime,
			URL:      req.URL,
			AltText:  req.AltText,
		}
		if err := database.UpsertAttachment(att); err != nil {
			log.Printf("Content: Failed to upsert attachment %d: %v", req.Id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store attachment"})
			return
		}
	}

	events <- domain.LifecycleEvent{
		Kind:     domain.KindAttachment,
		EntityId: req.Id,
		ActorId:  acc.Id,
		Action:   req.Action,
		Context:  req.Context.toContext(),
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// HandleTermUpsert records a taxonomy term mutation for triage
func HandleTermUpsert(c *gin.Context, conf *util.AppConfig, events chan<- domain.LifecycleEvent) {
	var req TermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	database := db.GetDB()

	err, acc := database.ReadAccByUsername(req.Author)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown author"})
		return
	}

	term := &domain.Term{
		Id:       req.Id,
		Taxonomy: req.Taxonomy,
		Name:     req.Name,
		Slug:     req.Slug,
	}
	if err := database.UpsertTerm(term); err != nil {
		log.Printf("Content: Failed to upsert term %d: %v", req.Id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store term"})
		return
	}

	events <- domain.LifecycleEvent{
		Kind:      domain.KindTerm,
		EntityId:  req.Id,
		ActorId:   acc.Id,
		NewStatus: domain.EntityStatus(req.Status),
		OldStatus: domain.EntityStatus(req.OldStatus),
		Context:   req.Context.toContext(),
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// HandleCommentUpsert records a comment mutation for triage
func HandleCommentUpsert(c *gin.Context, conf *util.AppConfig, events chan<- domain.LifecycleEvent) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	database := db.GetDB()

	err, acc := database.ReadAccByUsername(req.Author)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown author"})
		return
	}

	comment := &domain.Comment{
		Id:         req.Id,
		PostId:     req.PostId,
		AuthorId:   acc.Id,
		AuthorName: req.AuthorName,
		Content:    req.Content,
		Status:     domain.EntityStatus(req.Status),
		CreatedAt:  time.Now().UTC(),
	}
	if err := database.UpsertComment(comment); err != nil {
		log.Printf("Content: Failed to upsert comment %d: %v", req.Id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store comment"})
		return
	}

	events <- domain.LifecycleEvent{
		Kind:      domain.KindComment,
		EntityId:  req.Id,
		ActorId:   acc.Id,
		NewStatus: comment.Status,
		OldStatus: domain.EntityStatus(req.OldStatus),
		Context:   req.Context.toContext(),
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}
