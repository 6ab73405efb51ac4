package web

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/transformer"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

const outboxPageSize = 20

// GetOutboxCollection renders the outbox of a local account. Page 0 returns
// the collection envelope, pages >= 1 return ordered pages of delivered
// activities, newest first.
func GetOutboxCollection(username string, page int, conf *util.AppConfig) (error, string) {
	database := db.GetDB()

	err, acc := database.ReadAccByUsername(username)
	if err != nil {
		return err, "{}"
	}

	err, total := database.CountCompletedOutboxByActor(acc.Id)
	if err != nil {
		return err, "{}"
	}

	if page < 1 {
		return nil, BuildOutboxEnvelope(username, total, conf)
	}

	offset := (page - 1) * outboxPageSize
	err, items := database.ReadCompletedOutboxByActor(acc.Id, outboxPageSize, offset)
	if err != nil {
		return err, "{}"
	}

	hasMore := offset+outboxPageSize < total
	doc, err := BuildOutboxPage(username, page, *items, hasMore, conf)
	if err != nil {
		return err, "{}"
	}

	return nil, doc
}

// BuildOutboxEnvelope renders the OrderedCollection wrapper
func BuildOutboxEnvelope(username string, total int, conf *util.AppConfig) string {
	outboxIRI := fmt.Sprintf("%s/outbox", transformer.ActorIRI(conf, username))

	envelope := map[string]interface{}{
		"@context":   domain.ContextActivityStreams,
		"id":         outboxIRI,
		"type":       "OrderedCollection",
		"totalItems": total,
		"first":      fmt.Sprintf("%s?page=1", outboxIRI),
	}

	doc, _ := json.Marshal(envelope)
	return string(doc)
}

// BuildOutboxPage renders one OrderedCollectionPage of delivered activities
func BuildOutboxPage(username string, page int, items []domain.OutboxItem, hasMore bool, conf *util.AppConfig) (string, error) {
	outboxIRI := fmt.Sprintf("%s/outbox", transformer.ActorIRI(conf, username))

	ordered := make([]interface{}, 0, len(items))
	for _, item := range items {
		var activity map[string]interface{}
		if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
			log.Printf("Outbox: Skipping malformed activity %s: %v", item.Id, err)
			continue
		}
		// The envelope already carries the context
		delete(activity, "@context")
		ordered = append(ordered, activity)
	}

	pageDoc := map[string]interface{}{
		"@context":     domain.ContextActivityStreams,
		"id":           fmt.Sprintf("%s?page=%d", outboxIRI, page),
		"type":         "OrderedCollectionPage",
		"partOf":       outboxIRI,
		"orderedItems": ordered,
	}
	if hasMore {
		pageDoc["next"] = fmt.Sprintf("%s?page=%d", outboxIRI, page+1)
	}

	doc, err := json.Marshal(pageDoc)
	if err != nil {
		return "", err
	}
	return string(doc), nil
}

// GetFollowersCollection renders the followers collection of a local account
func GetFollowersCollection(username string, conf *util.AppConfig) (error, string) {
	database := db.GetDB()

	err, acc := database.ReadAccByUsername(username)
	if err != nil {
		return err, "{}"
	}

	err, followers := database.ReadFollowersByLocalId(acc.Id)
	if err != nil {
		return err, "{}"
	}

	iris := make([]string, 0, len(*followers))
	for _, f := range *followers {
		iris = append(iris, f.ID)
	}

	return nil, BuildFollowersCollection(username, iris, conf)
}

// BuildFollowersCollection renders an OrderedCollection of follower IRIs
func BuildFollowersCollection(username string, iris []string, conf *util.AppConfig) string {
	collection := map[string]interface{}{
		"@context":     domain.ContextActivityStreams,
		"id":           transformer.FollowersIRI(conf, username),
		"type":         "OrderedCollection",
		"totalItems":   len(iris),
		"orderedItems": iris,
	}

	doc, _ := json.Marshal(collection)
	return string(doc)
}

// GetFeaturedCollection renders the pinned posts collection of a local account
func GetFeaturedCollection(username string, conf *util.AppConfig) (error, string) {
	database := db.GetDB()

	err, acc := database.ReadAccByUsername(username)
	if err != nil {
		return err, "{}"
	}

	err, posts := database.ReadStickyPostsByAuthor(acc.Id)
	if err != nil {
		return err, "{}"
	}

	iris := make([]string, 0, len(*posts))
	for _, p := range *posts {
		if p.Status != domain.StatusPublish {
			continue
		}
		iris = append(iris, transformer.PostIRI(conf, p.Id))
	}

	return nil, BuildFeaturedCollection(username, iris, conf)
}

// BuildFeaturedCollection renders an OrderedCollection of pinned post IRIs
func BuildFeaturedCollection(username string, iris []string, conf *util.AppConfig) string {
	collection := map[string]interface{}{
		"@context":     domain.ContextActivityStreams,
		"id":           transformer.FeaturedCollectionIRI(conf, username),
		"type":         "OrderedCollection",
		"totalItems":   len(iris),
		"orderedItems": iris,
	}

	doc, _ := json.Marshal(collection)
	return string(doc)
}

// OutboxReader is the store surface the inspection endpoint needs,
// satisfied by db.DB.
type OutboxReader interface {
	ReadOutboxItems(limit int) (error, *[]domain.OutboxItem)
	ReadOutboxItemsByStatus(status domain.OutboxStatus, limit int) (error, *[]domain.OutboxItem)
}

// outboxItemView is the wire shape of one inspection row
type outboxItemView struct {
	Id           uuid.UUID           `json:"id"`
	ActivityJSON string              `json:"activity_json"`
	ActorId      uuid.UUID           `json:"actor_id"`
	Status       domain.OutboxStatus `json:"status"`
	AttemptCount int                 `json:"attempt_count"`
	CreatedAt    time.Time           `json:"created_at"`
}

// GetOutboxItems renders outbox rows for operational inspection.
// An empty status returns the most recent items regardless of state.
func GetOutboxItems(store OutboxReader, status string, limit int) (error, string) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var err error
	var items *[]domain.OutboxItem
	if status == "" {
		err, items = store.ReadOutboxItems(limit)
	} else {
		err, items = store.ReadOutboxItemsByStatus(domain.OutboxStatus(status), limit)
	}
	if err != nil {
		return err, "[]"
	}

	views := make([]outboxItemView, 0, len(*items))
	for _, item := range *items {
		views = append(views, outboxItemView{
			Id:           item.Id,
			ActivityJSON: item.ActivityJSON,
			ActorId:      item.ActorId,
			Status:       item.Status,
			AttemptCount: item.Attempts,
			CreatedAt:    item.CreatedAt,
		})
	}

	doc, err := json.Marshal(views)
	if err != nil {
		return err, "[]"
	}

	return nil, string(doc)
}
