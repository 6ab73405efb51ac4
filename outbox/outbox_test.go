package outbox

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

// fakeQueueStore records what the service persists
type fakeQueueStore struct {
	inserted   []*domain.OutboxItem
	claimed    []domain.OutboxItem
	completed  []uuid.UUID
	failed     map[uuid.UUID]string
	pruneCut   time.Time
	pruned     int64
	insertErr  error
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{failed: make(map[uuid.UUID]string)}
}

func (s *fakeQueueStore) InsertOutboxItem(item *domain.OutboxItem) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, item)
	return nil
}

func (s *fakeQueueStore) ClaimOutboxItems(limit int) (error, *[]domain.OutboxItem) {
	if len(s.claimed) == 0 {
		return nil, nil
	}
	batch := s.claimed
	if len(batch) > limit {
		batch = batch[:limit]
	}
	return nil, &batch
}

func (s *fakeQueueStore) MarkOutboxComplete(id uuid.UUID) error {
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeQueueStore) MarkOutboxFailed(id uuid.UUID, message string) error {
	s.failed[id] = message
	return nil
}

func (s *fakeQueueStore) PruneCompletedOutbox(olderThan time.Time) (error, int64) {
	s.pruneCut = olderThan
	return nil, s.pruned
}

// fakeContent is the minimal content read surface for enqueue tests
type fakeContent struct {
	posts    map[int64]*domain.Post
	accounts map[uuid.UUID]*domain.Account
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		posts:    make(map[int64]*domain.Post),
		accounts: make(map[uuid.UUID]*domain.Account),
	}
}

func (s *fakeContent) ReadPostById(id int64) (error, *domain.Post) {
	if p, ok := s.posts[id]; ok {
		return nil, p
	}
	return sql.ErrNoRows, nil
}

func (s *fakeContent) ReadAttachmentById(id int64) (error, *domain.Attachment) {
	return sql.ErrNoRows, nil
}

func (s *fakeContent) ReadTermById(id int64) (error, *domain.Term) {
	return sql.ErrNoRows, nil
}

func (s *fakeContent) ReadCommentById(id int64) (error, *domain.Comment) {
	return sql.ErrNoRows, nil
}

func (s *fakeContent) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	if a, ok := s.accounts[id]; ok {
		return nil, a
	}
	return sql.ErrNoRows, nil
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Domain = "example.com"
	conf.Conf.FederatedPostTypes = []string{"post", "page", "event"}
	return conf
}

func testService() (*Service, *fakeQueueStore, *fakeContent, uuid.UUID) {
	store := newFakeQueueStore()
	content := newFakeContent()
	actorId := uuid.New()
	content.accounts[actorId] = &domain.Account{Id: actorId, Username: "admin"}
	return NewService(store, content, testConf()), store, content, actorId
}

func publishedPost(authorId uuid.UUID) *domain.Post {
	now := time.Now().UTC()
	return &domain.Post{
		Id:          7,
		AuthorId:    authorId,
		Type:        "post",
		Title:       "First post",
		Content:     "<p>hello</p>",
		Status:      domain.StatusPublish,
		PublishedAt: now,
		ModifiedAt:  now,
	}
}

func parseActivity(t *testing.T, item *domain.OutboxItem) map[string]interface{} {
	var activity map[string]interface{}
	if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
		t.Fatalf("Queued activity is not valid JSON: %v", err)
	}
	return activity
}

func TestEnqueueCreateEmbedsObject(t *testing.T) {
	svc, store, content, actorId := testService()
	content.posts[7] = publishedPost(actorId)

	item, err := svc.Enqueue(domain.KindPost, 7, domain.TypeCreate, actorId)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("Expected 1 inserted item, got %d", len(store.inserted))
	}
	if item.Status != domain.OutboxPending {
		t.Errorf("Expected pending status, got %s", item.Status)
	}
	if item.ActivityType != domain.TypeCreate {
		t.Errorf("Expected Create activity type, got %s", item.ActivityType)
	}
	if item.ObjectIRI != "https://example.com/?p=7" {
		t.Errorf("Unexpected object IRI: %s", item.ObjectIRI)
	}

	activity := parseActivity(t, item)
	if activity["type"] != "Create" {
		t.Errorf("Expected Create envelope, got %v", activity["type"])
	}
	if activity["actor"] != "https://example.com/users/admin" {
		t.Errorf("Unexpected actor: %v", activity["actor"])
	}

	obj, ok := activity["object"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected embedded object, got %T", activity["object"])
	}
	if obj["id"] != "https://example.com/?p=7" {
		t.Errorf("Unexpected embedded object id: %v", obj["id"])
	}
	// Object context must be hoisted onto the envelope
	if _, hasContext := obj["@context"]; hasContext {
		t.Error("Embedded object should not carry its own @context")
	}
	if activity["@context"] == nil {
		t.Error("Envelope is missing the hoisted @context")
	}

	// Audience copied up from the object
	to, _ := activity["to"].([]interface{})
	if len(to) != 1 || to[0] != domain.PublicAudience {
		t.Errorf("Unexpected to field: %v", activity["to"])
	}
	cc, _ := activity["cc"].([]interface{})
	if len(cc) != 1 || cc[0] != "https://example.com/users/admin/followers" {
		t.Errorf("Unexpected cc field: %v", activity["cc"])
	}
}

func TestEnqueueDeleteBuildsTombstone(t *testing.T) {
	// No post stored: the entity is already gone, the tombstone must
	// still build from its id alone.
	svc, store, _, actorId := testService()

	item, err := svc.Enqueue(domain.KindPost, 7, domain.TypeDelete, actorId)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("Expected 1 inserted item, got %d", len(store.inserted))
	}

	activity := parseActivity(t, item)
	obj, ok := activity["object"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected tombstone object, got %T", activity["object"])
	}
	if obj["type"] != "Tombstone" {
		t.Errorf("Expected Tombstone, got %v", obj["type"])
	}
	if obj["id"] != "https://example.com/?p=7" {
		t.Errorf("Unexpected tombstone id: %v", obj["id"])
	}
	if len(obj) != 2 {
		t.Errorf("Tombstone should carry id and type only, got %v", obj)
	}
	if item.ObjectIRI != "https://example.com/?p=7" {
		t.Errorf("Unexpected object IRI: %s", item.ObjectIRI)
	}
}

func TestEnqueueAddTargetsFeaturedCollection(t *testing.T) {
	svc, _, content, actorId := testService()
	content.posts[7] = publishedPost(actorId)

	for _, activityType := range []string{domain.TypeAdd, domain.TypeRemove} {
		item, err := svc.Enqueue(domain.KindPost, 7, activityType, actorId)
		if err != nil {
			t.Fatalf("Enqueue %s failed: %v", activityType, err)
		}
		activity := parseActivity(t, item)
		if activity["object"] != "https://example.com/?p=7" {
			t.Errorf("%s: expected object by reference, got %v", activityType, activity["object"])
		}
		if activity["target"] != "https://example.com/users/admin/collections/featured" {
			t.Errorf("%s: unexpected target: %v", activityType, activity["target"])
		}
	}
}

func TestEnqueueUnknownActorFails(t *testing.T) {
	svc, store, content, _ := testService()
	content.posts[7] = publishedPost(uuid.New())

	_, err := svc.Enqueue(domain.KindPost, 7, domain.TypeCreate, uuid.New())
	if err == nil {
		t.Fatal("Expected error for unknown actor")
	}
	if len(store.inserted) != 0 {
		t.Error("Nothing should be queued when the actor cannot be resolved")
	}
}

func TestEnqueueInsertFailurePropagates(t *testing.T) {
	svc, store, content, actorId := testService()
	content.posts[7] = publishedPost(actorId)
	store.insertErr = errors.New("disk full")

	_, err := svc.Enqueue(domain.KindPost, 7, domain.TypeCreate, actorId)
	if err == nil {
		t.Fatal("Expected insert failure to propagate")
	}
}

func TestEnqueueActivityAssignsId(t *testing.T) {
	svc, store, _, actorId := testService()

	activity := &domain.Activity{
		Type:   domain.TypeAccept,
		Actor:  "https://example.com/users/admin",
		Object: map[string]interface{}{"id": "https://remote.example/follow/1", "type": domain.TypeFollow},
	}
	item, err := svc.EnqueueActivity(activity, actorId)
	if err != nil {
		t.Fatalf("EnqueueActivity failed: %v", err)
	}
	if activity.ID == "" {
		t.Error("Expected an activity id to be assigned")
	}
	if item.ObjectIRI != "https://remote.example/follow/1" {
		t.Errorf("Expected object IRI from embedded map, got %s", item.ObjectIRI)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("Expected 1 inserted item, got %d", len(store.inserted))
	}
}

func TestEnqueueActivityStringObject(t *testing.T) {
	svc, _, _, actorId := testService()

	activity := &domain.Activity{
		ID:     "https://example.com/activities/fixed",
		Type:   domain.TypeUpdate,
		Actor:  "https://example.com/users/admin",
		Object: "https://example.com/?p=3",
	}
	item, err := svc.EnqueueActivity(activity, actorId)
	if err != nil {
		t.Fatalf("EnqueueActivity failed: %v", err)
	}
	if activity.ID != "https://example.com/activities/fixed" {
		t.Errorf("Existing id must be preserved, got %s", activity.ID)
	}
	if item.ObjectIRI != "https://example.com/?p=3" {
		t.Errorf("Expected object IRI from string object, got %s", item.ObjectIRI)
	}
}

func TestDequeueBatch(t *testing.T) {
	svc, store, _, actorId := testService()
	for i := 0; i < 3; i++ {
		store.claimed = append(store.claimed, domain.OutboxItem{
			Id:      uuid.New(),
			ActorId: actorId,
			Status:  domain.OutboxProcessing,
		})
	}

	items, err := svc.DequeueBatch(2)
	if err != nil {
		t.Fatalf("DequeueBatch failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected batch of 2, got %d", len(items))
	}

	store.claimed = nil
	items, err = svc.DequeueBatch(2)
	if err != nil {
		t.Fatalf("DequeueBatch failed: %v", err)
	}
	if items != nil {
		t.Errorf("Expected empty batch, got %d items", len(items))
	}
}

func TestMarkCompleteAndFailed(t *testing.T) {
	svc, store, _, actorId := testService()
	item := &domain.OutboxItem{Id: uuid.New(), ActorId: actorId}

	if err := svc.MarkComplete(item); err != nil {
		t.Fatalf("MarkComplete failed: %v", err)
	}
	if len(store.completed) != 1 || store.completed[0] != item.Id {
		t.Errorf("Expected item %s completed, got %v", item.Id, store.completed)
	}

	if err := svc.MarkFailed(item, errors.New("inbox unreachable")); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if store.failed[item.Id] != "inbox unreachable" {
		t.Errorf("Expected failure message recorded, got %q", store.failed[item.Id])
	}
}

func TestPruneCompletedCutoff(t *testing.T) {
	svc, store, _, _ := testService()
	store.pruned = 4

	before := time.Now().Add(-24 * time.Hour)
	svc.PruneCompleted(24 * time.Hour)

	if store.pruneCut.Before(before.Add(-time.Minute)) || store.pruneCut.After(time.Now()) {
		t.Errorf("Prune cutoff outside expected window: %v", store.pruneCut)
	}
}
