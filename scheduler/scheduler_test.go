package scheduler

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

type emitted struct {
	kind         domain.EntityKind
	entityId     int64
	activityType string
}

// fakeOutbox records every enqueue, optionally failing
type fakeOutbox struct {
	emitted    []emitted
	enqueueErr error
}

func (o *fakeOutbox) Enqueue(kind domain.EntityKind, entityId int64, activityType string, actorId uuid.UUID) (*domain.OutboxItem, error) {
	if o.enqueueErr != nil {
		return nil, o.enqueueErr
	}
	o.emitted = append(o.emitted, emitted{kind: kind, entityId: entityId, activityType: activityType})
	return &domain.OutboxItem{Id: uuid.New()}, nil
}

type fakeContentStore struct {
	posts       map[int64]*domain.Post
	attachments map[int64]*domain.Attachment
	states      map[int64]domain.FederationState
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{
		posts:       make(map[int64]*domain.Post),
		attachments: make(map[int64]*domain.Attachment),
		states:      make(map[int64]domain.FederationState),
	}
}

func (s *fakeContentStore) ReadPostById(id int64) (error, *domain.Post) {
	if p, ok := s.posts[id]; ok {
		return nil, p
	}
	return sql.ErrNoRows, nil
}

func (s *fakeContentStore) ReadAttachmentById(id int64) (error, *domain.Attachment) {
	if a, ok := s.attachments[id]; ok {
		return nil, a
	}
	return sql.ErrNoRows, nil
}

func (s *fakeContentStore) UpdateFederationState(postId int64, state domain.FederationState) error {
	s.states[postId] = state
	return nil
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Domain = "example.com"
	conf.Conf.FederatedPostTypes = []string{"post", "page", "event"}
	return conf
}

func testScheduler() (*Scheduler, *fakeOutbox, *fakeContentStore) {
	outbox := &fakeOutbox{}
	store := newFakeContentStore()
	return New(outbox, store, testConf()), outbox, store
}

func postEvent(entityId int64, oldStatus, newStatus domain.EntityStatus) domain.LifecycleEvent {
	return domain.LifecycleEvent{
		Kind:       domain.KindPost,
		EntityId:   entityId,
		ActorId:    uuid.New(),
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		Visibility: domain.VisibilityPublic,
	}
}

func TestClassifyTransitions(t *testing.T) {
	cases := []struct {
		name       string
		oldStatus  domain.EntityStatus
		newStatus  domain.EntityStatus
		visibility domain.Visibility
		federated  bool
		wantType   string
		wantEmit   bool
	}{
		{"first publish", domain.StatusDraft, domain.StatusPublish, domain.VisibilityPublic, false, domain.TypeCreate, true},
		{"re-save published", domain.StatusPublish, domain.StatusPublish, domain.VisibilityPublic, true, domain.TypeUpdate, true},
		{"re-publish federated draft", domain.StatusDraft, domain.StatusPublish, domain.VisibilityPublic, true, domain.TypeCreate, true},
		{"unpublish federated", domain.StatusPublish, domain.StatusDraft, domain.VisibilityPublic, true, domain.TypeUpdate, true},
		{"draft never federated", domain.StatusDraft, domain.StatusDraft, domain.VisibilityPublic, false, "", false},
		{"new draft", "", domain.StatusDraft, domain.VisibilityPublic, false, "", false},
		{"trash federated", domain.StatusPublish, domain.StatusTrash, domain.VisibilityPublic, true, domain.TypeDelete, true},
		{"trash never federated", domain.StatusDraft, domain.StatusTrash, domain.VisibilityPublic, false, "", false},
		{"federated goes local", domain.StatusPublish, domain.StatusPublish, domain.VisibilityLocal, true, domain.TypeDelete, true},
		{"federated goes private", domain.StatusPublish, domain.StatusPublish, domain.VisibilityPrivate, true, domain.TypeDelete, true},
		{"unfederated private publish", domain.StatusDraft, domain.StatusPublish, domain.VisibilityPrivate, false, domain.TypeCreate, true},
	}

	for _, tc := range cases {
		activityType, emit := Classify(tc.oldStatus, tc.newStatus, tc.visibility, tc.federated)
		if emit != tc.wantEmit {
			t.Errorf("%s: emit = %v, want %v", tc.name, emit, tc.wantEmit)
			continue
		}
		if activityType != tc.wantType {
			t.Errorf("%s: type = %q, want %q", tc.name, activityType, tc.wantType)
		}
	}
}

func TestSuppression(t *testing.T) {
	cases := []struct {
		name string
		ctx  domain.TriageContext
		want bool
	}{
		{"import", domain.TriageContext{IsImport: true}, true},
		{"federation disabled", domain.TriageContext{FederationDisabled: true}, true},
		{"bulk edit no relevant change", domain.TriageContext{IsBulkEdit: true, ChangedFields: []string{"tags"}}, true},
		{"bulk edit status change", domain.TriageContext{IsBulkEdit: true, ChangedFields: []string{"status"}}, false},
		{"bulk edit author change", domain.TriageContext{IsBulkEdit: true, ChangedFields: []string{"author"}}, false},
		{"normal save", domain.TriageContext{}, false},
	}
	for _, tc := range cases {
		if got := suppressed(tc.ctx); got != tc.want {
			t.Errorf("%s: suppressed = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTriageSuppressedEmitsNothing(t *testing.T) {
	sched, outbox, store := testScheduler()
	store.posts[1] = &domain.Post{Id: 1, Type: "post", Status: domain.StatusPublish}

	ev := postEvent(1, domain.StatusDraft, domain.StatusPublish)
	ev.Context = domain.TriageContext{IsImport: true}
	sched.Triage(ev)

	if len(outbox.emitted) != 0 {
		t.Errorf("Expected no activity for imported content, got %v", outbox.emitted)
	}
}

func TestTriagePostFirstPublish(t *testing.T) {
	sched, outbox, store := testScheduler()
	store.posts[1] = &domain.Post{Id: 1, Type: "post", Status: domain.StatusPublish}

	sched.Triage(postEvent(1, domain.StatusDraft, domain.StatusPublish))

	if len(outbox.emitted) != 1 {
		t.Fatalf("Expected 1 activity, got %d", len(outbox.emitted))
	}
	if outbox.emitted[0].activityType != domain.TypeCreate {
		t.Errorf("Expected Create, got %s", outbox.emitted[0].activityType)
	}
	if store.states[1] != domain.FederationFederated {
		t.Errorf("Expected post marked federated, got %q", store.states[1])
	}
}

func TestTriagePostUpdateKeepsFederationState(t *testing.T) {
	sched, outbox, store := testScheduler()
	store.posts[1] = &domain.Post{
		Id:              1,
		Type:            "post",
		Status:          domain.StatusPublish,
		FederationState: domain.FederationFederated,
	}

	sched.Triage(postEvent(1, domain.StatusPublish, domain.StatusPublish))

	if len(outbox.emitted) != 1 || outbox.emitted[0].activityType != domain.TypeUpdate {
		t.Fatalf("Expected a single Update, got %v", outbox.emitted)
	}
	if _, touched := store.states[1]; touched {
		t.Error("Update must not rewrite the federation state")
	}
}

func TestTriagePostVanished(t *testing.T) {
	sched, outbox, _ := testScheduler()

	sched.Triage(postEvent(99, domain.StatusDraft, domain.StatusPublish))

	if len(outbox.emitted) != 0 {
		t.Errorf("Expected nothing for a vanished post, got %v", outbox.emitted)
	}
}

func TestTriageStickyDoubleEmit(t *testing.T) {
	sched, outbox, store := testScheduler()
	store.posts[1] = &domain.Post{
		Id:              1,
		Type:            "post",
		Status:          domain.StatusPublish,
		FederationState: domain.FederationFederated,
		Sticky:          true,
	}

	ev := postEvent(1, domain.StatusPublish, domain.StatusPublish)
	ev.StickyChanged = true
	ev.NowSticky = true
	sched.Triage(ev)

	// The re-save still emits its Update; the featured-collection Add is
	// additive, not a replacement
	if len(outbox.emitted) != 2 {
		t.Fatalf("Expected Update plus Add, got %v", outbox.emitted)
	}
	if outbox.emitted[0].activityType != domain.TypeUpdate {
		t.Errorf("First activity should be Update, got %s", outbox.emitted[0].activityType)
	}
	if outbox.emitted[1].activityType != domain.TypeAdd {
		t.Errorf("Second activity should be Add, got %s", outbox.emitted[1].activityType)
	}
}

func TestTriageUnstickyEmitsRemove(t *testing.T) {
	sched, outbox, store := testScheduler()
	store.posts[1] = &domain.Post{
		Id:              1,
		Type:            "post",
		Status:          domain.StatusPublish,
		FederationState: domain.FederationFederated,
	}

	ev := postEvent(1, domain.StatusPublish, domain.StatusPublish)
	ev.StickyChanged = true
	ev.NowSticky = false
	sched.Triage(ev)

	if len(outbox.emitted) != 2 {
		t.Fatalf("Expected Update plus Remove, got %v", outbox.emitted)
	}
	if outbox.emitted[1].activityType != domain.TypeRemove {
		t.Errorf("Expected Remove, got %s", outbox.emitted[1].activityType)
	}
}

func TestTriageStickyIgnoredOffPublish(t *testing.T) {
	sched, outbox, store := testScheduler()
	store.posts[1] = &domain.Post{
		Id:              1,
		Type:            "post",
		Status:          domain.StatusDraft,
		FederationState: domain.FederationFederated,
	}

	ev := postEvent(1, domain.StatusPublish, domain.StatusDraft)
	ev.StickyChanged = true
	ev.NowSticky = true
	sched.Triage(ev)

	// Unpublishing emits its Update, but no featured-collection change
	// for a post leaving publish
	for _, e := range outbox.emitted {
		if e.activityType == domain.TypeAdd || e.activityType == domain.TypeRemove {
			t.Errorf("Unexpected featured-collection activity %s", e.activityType)
		}
	}
}

func TestTriageAttachmentActions(t *testing.T) {
	cases := []struct {
		action   string
		wantType string
		want     bool
	}{
		{"add", domain.TypeCreate, true},
		{"edit", domain.TypeUpdate, true},
		{"delete", domain.TypeDelete, true},
		{"rename", "", false},
	}

	for _, tc := range cases {
		sched, outbox, store := testScheduler()
		store.posts[1] = &domain.Post{Id: 1, Type: "post", Status: domain.StatusPublish}
		store.attachments[10] = &domain.Attachment{Id: 10, PostId: 1}

		sched.Triage(domain.LifecycleEvent{
			Kind:     domain.KindAttachment,
			EntityId: 10,
			ActorId:  uuid.New(),
			Action:   tc.action,
		})

		if tc.want {
			if len(outbox.emitted) != 1 || outbox.emitted[0].activityType != tc.wantType {
				t.Errorf("Action %q: expected %s, got %v", tc.action, tc.wantType, outbox.emitted)
			}
		} else if len(outbox.emitted) != 0 {
			t.Errorf("Action %q: expected nothing, got %v", tc.action, outbox.emitted)
		}
	}
}

func TestTriageAttachmentParentNotFederatedType(t *testing.T) {
	sched, outbox, store := testScheduler()
	store.posts[1] = &domain.Post{Id: 1, Type: "recipe", Status: domain.StatusPublish}
	store.attachments[10] = &domain.Attachment{Id: 10, PostId: 1}

	sched.Triage(domain.LifecycleEvent{
		Kind:     domain.KindAttachment,
		EntityId: 10,
		ActorId:  uuid.New(),
		Action:   "add",
	})

	if len(outbox.emitted) != 0 {
		t.Errorf("Attachment of non-federated post type must not federate, got %v", outbox.emitted)
	}
}

func TestTriageCommentPublish(t *testing.T) {
	sched, outbox, _ := testScheduler()

	sched.Triage(domain.LifecycleEvent{
		Kind:       domain.KindComment,
		EntityId:   5,
		ActorId:    uuid.New(),
		OldStatus:  domain.StatusDraft,
		NewStatus:  domain.StatusPublish,
		Visibility: domain.VisibilityPublic,
	})

	if len(outbox.emitted) != 1 || outbox.emitted[0].activityType != domain.TypeCreate {
		t.Fatalf("Expected Create for approved comment, got %v", outbox.emitted)
	}
	if outbox.emitted[0].kind != domain.KindComment {
		t.Errorf("Expected comment kind, got %s", outbox.emitted[0].kind)
	}
}

func TestTriageTermTrashAfterPublish(t *testing.T) {
	sched, outbox, _ := testScheduler()

	sched.Triage(domain.LifecycleEvent{
		Kind:       domain.KindTerm,
		EntityId:   3,
		ActorId:    uuid.New(),
		OldStatus:  domain.StatusPublish,
		NewStatus:  domain.StatusTrash,
		Visibility: domain.VisibilityPublic,
	})

	if len(outbox.emitted) != 1 || outbox.emitted[0].activityType != domain.TypeDelete {
		t.Fatalf("Expected Delete for trashed published term, got %v", outbox.emitted)
	}
}

func TestEmitFailureMarksPostErrored(t *testing.T) {
	outbox := &fakeOutbox{enqueueErr: errors.New("queue unavailable")}
	store := newFakeContentStore()
	sched := New(outbox, store, testConf())
	store.posts[1] = &domain.Post{Id: 1, Type: "post", Status: domain.StatusPublish}

	sched.Triage(postEvent(1, domain.StatusDraft, domain.StatusPublish))

	if store.states[1] != domain.FederationErrored {
		t.Errorf("Expected errored federation state, got %q", store.states[1])
	}
}
