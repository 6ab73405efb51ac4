// Package scheduler classifies content lifecycle transitions and decides
// which activity, if any, each one produces. It consumes typed lifecycle
// events from the content store; nothing here reads ambient request state.
package scheduler

import (
	"log"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

// Outbox is the enqueue surface of the outbox service
type Outbox interface {
	Enqueue(kind domain.EntityKind, entityId int64, activityType string, actorId uuid.UUID) (*domain.OutboxItem, error)
}

// ContentStore is the read/mark surface triage needs
type ContentStore interface {
	ReadPostById(id int64) (error, *domain.Post)
	ReadAttachmentById(id int64) (error, *domain.Attachment)
	UpdateFederationState(postId int64, state domain.FederationState) error
}

// Scheduler turns lifecycle events into queued activities
type Scheduler struct {
	outbox Outbox
	store  ContentStore
	conf   *util.AppConfig
}

func New(outbox Outbox, store ContentStore, conf *util.AppConfig) *Scheduler {
	return &Scheduler{outbox: outbox, store: store, conf: conf}
}

// Subscribe consumes lifecycle events until the channel closes
func (s *Scheduler) Subscribe(events <-chan domain.LifecycleEvent) {
	go func() {
		for ev := range events {
			s.Triage(ev)
		}
	}()
}

// Triage classifies one lifecycle transition. Suppression rules run
// before any classification.
func (s *Scheduler) Triage(ev domain.LifecycleEvent) {
	if suppressed(ev.Context) {
		return
	}

	switch ev.Kind {
	case domain.KindAttachment:
		s.triageAttachment(ev)
	case domain.KindPost:
		s.triagePost(ev)
	case domain.KindTerm, domain.KindComment:
		s.triageGeneric(ev)
	default:
		log.Printf("Scheduler: No triage for entity kind %q", ev.Kind)
	}
}

// suppressed short-circuits triage for imports, disabled entities and
// bulk edits that changed neither author nor status
func suppressed(tc domain.TriageContext) bool {
	if tc.IsImport {
		return true
	}
	if tc.FederationDisabled {
		return true
	}
	if tc.IsBulkEdit && !tc.Changed("author") && !tc.Changed("status") {
		return true
	}
	return false
}

func (s *Scheduler) triagePost(ev domain.LifecycleEvent) {
	err, post := s.store.ReadPostById(ev.EntityId)
	if err != nil || post == nil {
		log.Printf("Scheduler: Post %d vanished before triage: %v", ev.EntityId, err)
		return
	}

	federated := post.FederationState == domain.FederationFederated

	activityType, emit := Classify(ev.OldStatus, ev.NewStatus, ev.Visibility, federated)
	if emit {
		s.emit(ev.Kind, ev.EntityId, activityType, ev.ActorId)
	}

	// Featured-collection membership is a separate parallel notification,
	// additive to the Update emitted above for the same re-save
	if ev.StickyChanged && ev.NewStatus == domain.StatusPublish {
		if ev.NowSticky {
			s.emit(ev.Kind, ev.EntityId, domain.TypeAdd, ev.ActorId)
		} else {
			s.emit(ev.Kind, ev.EntityId, domain.TypeRemove, ev.ActorId)
		}
	}
}

// triageAttachment maps the triggering action 1:1, gated on the parent
// post type opting into federation
func (s *Scheduler) triageAttachment(ev domain.LifecycleEvent) {
	err, att := s.store.ReadAttachmentById(ev.EntityId)
	if err != nil || att == nil {
		log.Printf("Scheduler: Attachment %d vanished before triage: %v", ev.EntityId, err)
		return
	}
	err, parent := s.store.ReadPostById(att.PostId)
	if err != nil || parent == nil {
		log.Printf("Scheduler: Parent post %d of attachment %d vanished: %v", att.PostId, ev.EntityId, err)
		return
	}
	if !s.conf.PostTypeFederated(parent.Type) {
		return
	}

	var activityType string
	switch ev.Action {
	case "add":
		activityType = domain.TypeCreate
	case "edit":
		activityType = domain.TypeUpdate
	case "delete":
		activityType = domain.TypeDelete
	default:
		return
	}
	s.emit(ev.Kind, ev.EntityId, activityType, ev.ActorId)
}

// triageGeneric classifies terms and comments on status transitions
// alone. These entities carry no persisted federation marker; having
// been published before counts as federated.
func (s *Scheduler) triageGeneric(ev domain.LifecycleEvent) {
	federated := ev.OldStatus == domain.StatusPublish
	activityType, emit := Classify(ev.OldStatus, ev.NewStatus, ev.Visibility, federated)
	if !emit {
		return
	}
	s.emit(ev.Kind, ev.EntityId, activityType, ev.ActorId)
}

// Classify is the transition table. It returns the activity type to emit
// and whether to emit at all.
func Classify(oldStatus domain.EntityStatus, newStatus domain.EntityStatus, visibility domain.Visibility, federated bool) (string, bool) {
	// A federated entity pulled out of public visibility is deleted
	// remotely, overriding any Update the transition would produce
	if federated && (visibility == domain.VisibilityLocal || visibility == domain.VisibilityPrivate) {
		return domain.TypeDelete, true
	}

	switch newStatus {
	case domain.StatusPublish:
		if !federated {
			return domain.TypeCreate, true
		}
		if oldStatus == domain.StatusPublish {
			return domain.TypeUpdate, true
		}
		// Re-publish of previously unpublished but federated content
		return domain.TypeCreate, true
	case domain.StatusDraft:
		if federated && oldStatus == domain.StatusPublish {
			return domain.TypeUpdate, true
		}
		return "", false
	case domain.StatusTrash:
		if federated {
			return domain.TypeDelete, true
		}
		return "", false
	}
	return "", false
}

func (s *Scheduler) emit(kind domain.EntityKind, entityId int64, activityType string, actorId uuid.UUID) {
	_, err := s.outbox.Enqueue(kind, entityId, activityType, actorId)
	if err != nil {
		log.Printf("Scheduler: Failed to enqueue %s for %s %d: %v", activityType, kind, entityId, err)
		if kind == domain.KindPost {
			if stateErr := s.store.UpdateFederationState(entityId, domain.FederationErrored); stateErr != nil {
				log.Printf("Scheduler: Failed to mark post %d errored: %v", entityId, stateErr)
			}
		}
		return
	}

	// First successful Create marks the post federated
	if kind == domain.KindPost && activityType == domain.TypeCreate {
		if err := s.store.UpdateFederationState(entityId, domain.FederationFederated); err != nil {
			log.Printf("Scheduler: Failed to mark post %d federated: %v", entityId, err)
		}
	}
}
