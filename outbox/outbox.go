// Package outbox is the durable queue of pending activities. Enqueue is
// synchronous and fast; delivery happens later on the dispatcher worker.
package outbox

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/transformer"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

// Store is the persistence surface the outbox needs. The db package
// implements it.
type Store interface {
	InsertOutboxItem(item *domain.OutboxItem) error
	ClaimOutboxItems(limit int) (error, *[]domain.OutboxItem)
	MarkOutboxComplete(id uuid.UUID) error
	MarkOutboxFailed(id uuid.UUID, message string) error
	PruneCompletedOutbox(olderThan time.Time) (error, int64)
}

// Service builds activities from content entities and queues them
type Service struct {
	store   Store
	content transformer.ContentStore
	conf    *util.AppConfig
}

func NewService(store Store, content transformer.ContentStore, conf *util.AppConfig) *Service {
	return &Service{store: store, content: content, conf: conf}
}

// Enqueue transforms the entity into an activity of the given type and
// persists a pending outbox item. Callers never block on delivery.
func (s *Service) Enqueue(kind domain.EntityKind, entityId int64, activityType string, actorId uuid.UUID) (*domain.OutboxItem, error) {
	tf, err := transformer.For(s.content, s.conf, kind, entityId, actorId)
	if err != nil {
		return nil, err
	}

	err, acc := s.content.ReadAccById(actorId)
	if err != nil || acc == nil {
		return nil, fmt.Errorf("failed to resolve actor %s: %w", actorId, err)
	}
	actorIri := transformer.ActorIRI(s.conf, acc.Username)

	activity := &domain.Activity{
		ID:        s.activityIRI(),
		Type:      activityType,
		Actor:     actorIri,
		Published: domain.FormatTime(time.Now()),
	}

	objectIri := tf.ToID()

	switch activityType {
	case domain.TypeDelete:
		// Tombstone only, never dereference deleted state
		tombstone := tf.ToTombstone()
		objectIri = tombstone.ID
		activity.Object = map[string]interface{}{"id": tombstone.ID, "type": tombstone.Type}
		activity.To = []string{domain.PublicAudience}
	case domain.TypeAdd, domain.TypeRemove:
		// Featured collection membership: object by reference, target set
		activity.Object = objectIri
		activity.Target = transformer.FeaturedCollectionIRI(s.conf, acc.Username)
		activity.To = []string{domain.PublicAudience}
	default:
		obj, err := tf.ToObject()
		if err != nil {
			return nil, err
		}
		objMap, objContext, err := embedObject(obj)
		if err != nil {
			return nil, err
		}
		if id, ok := objMap["id"].(string); ok && id != "" {
			objectIri = id
		}
		activity.Context = objContext
		activity.Object = objMap
		activity.To = audienceList(objMap, "to")
		activity.Cc = audienceList(objMap, "cc")
	}

	return s.enqueueItem(activity, activityType, actorId, objectIri)
}

// EnqueueActivity accepts a pre-built activity, for callers that already
// hold the full envelope (Accept responses, profile updates).
func (s *Service) EnqueueActivity(activity *domain.Activity, actorId uuid.UUID) (*domain.OutboxItem, error) {
	if activity.ID == "" {
		activity.ID = s.activityIRI()
	}
	objectIri := ""
	switch obj := activity.Object.(type) {
	case string:
		objectIri = obj
	case map[string]interface{}:
		if id, ok := obj["id"].(string); ok {
			objectIri = id
		}
	}
	return s.enqueueItem(activity, activity.Type, actorId, objectIri)
}

func (s *Service) enqueueItem(activity *domain.Activity, activityType string, actorId uuid.UUID, objectIri string) (*domain.OutboxItem, error) {
	activityJSON, err := activity.ToJSON()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	item := &domain.OutboxItem{
		Id:           uuid.New(),
		ActorId:      actorId,
		ActivityType: activityType,
		ActivityJSON: activityJSON,
		ObjectIRI:    objectIri,
		Status:       domain.OutboxPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertOutboxItem(item); err != nil {
		return nil, fmt.Errorf("failed to enqueue activity: %w", err)
	}
	log.Printf("Outbox: Queued %s for actor %s (item %s)", activityType, actorId, item.Id)
	return item, nil
}

// DequeueBatch atomically claims up to max pending items. Items another
// dispatcher already claimed are skipped, never returned twice.
func (s *Service) DequeueBatch(max int) ([]domain.OutboxItem, error) {
	err, items := s.store.ClaimOutboxItems(max)
	if err != nil {
		return nil, err
	}
	if items == nil {
		return nil, nil
	}
	return *items, nil
}

func (s *Service) MarkComplete(item *domain.OutboxItem) error {
	return s.store.MarkOutboxComplete(item.Id)
}

func (s *Service) MarkFailed(item *domain.OutboxItem, deliveryErr error) error {
	msg := ""
	if deliveryErr != nil {
		msg = deliveryErr.Error()
	}
	return s.store.MarkOutboxFailed(item.Id, msg)
}

// PruneCompleted applies the retention policy to completed items
func (s *Service) PruneCompleted(retention time.Duration) {
	err, pruned := s.store.PruneCompletedOutbox(time.Now().Add(-retention))
	if err != nil {
		log.Printf("Outbox: Failed to prune completed items: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("Outbox: Pruned %d completed items", pruned)
	}
}

func (s *Service) activityIRI() string {
	return fmt.Sprintf("https://%s/activities/%s", s.conf.Conf.Domain, uuid.New().String())
}

// embedObject renders the object and hoists its @context onto the
// activity envelope, the form remote servers expect.
func embedObject(obj transformer.ActivityObject) (map[string]interface{}, interface{}, error) {
	raw, err := obj.ToJSON()
	if err != nil {
		return nil, nil, err
	}
	var objMap map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &objMap); err != nil {
		return nil, nil, fmt.Errorf("failed to re-parse object: %w", err)
	}
	context := objMap["@context"]
	delete(objMap, "@context")
	return objMap, context, nil
}

func audienceList(objMap map[string]interface{}, field string) []string {
	raw, ok := objMap[field].([]interface{})
	if !ok {
		return nil
	}
	var list []string
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			list = append(list, s)
		}
	}
	return list
}
