package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityStatus is the lifecycle status of a content entity
type EntityStatus string

const (
	StatusNone    EntityStatus = ""
	StatusPublish EntityStatus = "publish"
	StatusDraft   EntityStatus = "draft"
	StatusTrash   EntityStatus = "trash"
)

// Visibility controls who may see a content entity
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityLocal   Visibility = "local"
	VisibilityPrivate Visibility = "private"
)

// FederationState marks whether an entity has ever been federated
type FederationState string

const (
	FederationUnfederated FederationState = "unfederated"
	FederationFederated   FederationState = "federated"
	FederationErrored     FederationState = "errored"
)

// EntityKind selects the transformer for a content entity
type EntityKind string

const (
	KindPost       EntityKind = "post"
	KindAttachment EntityKind = "attachment"
	KindTerm       EntityKind = "term"
	KindComment    EntityKind = "comment"
	KindActor      EntityKind = "actor"
)

// Post is a local content entity being federated. Read-only for the
// federation core aside from the federation state marker.
type Post struct {
	Id              int64
	AuthorId        uuid.UUID
	Type            string // post type: "post", "page", "event", ...
	Title           string
	Content         string
	Excerpt         string
	Status          EntityStatus
	Visibility      Visibility
	FederationState FederationState
	Sticky          bool
	CommentsOpen    bool
	PublishedAt     time.Time
	ModifiedAt      time.Time
	// Event posts carry a schedule; nil for other post types
	EventStart *time.Time
	EventEnd   *time.Time
}

// Attachment is a media entity attached to a post
type Attachment struct {
	Id       int64
	PostId   int64
	MimeType string
	URL      string
	AltText  string
}

// Term is a taxonomy term (category, tag). Its federated IRI is keyed on
// the numeric id so slug renames never break remote references.
type Term struct {
	Id       int64
	Taxonomy string
	Name     string
	Slug     string
}

// Comment is a reply on a local post
type Comment struct {
	Id         int64
	PostId     int64
	AuthorId   uuid.UUID
	AuthorName string
	Content    string
	Status     EntityStatus
	CreatedAt  time.Time
}

// TriageContext carries the request-level flags the scheduler needs,
// passed explicitly instead of read from ambient state.
type TriageContext struct {
	IsImport           bool
	IsBulkEdit         bool
	FederationDisabled bool
	ChangedFields      []string
}

// Changed reports whether a bulk edit touched the named field
func (tc TriageContext) Changed(field string) bool {
	for _, f := range tc.ChangedFields {
		if f == field {
			return true
		}
	}
	return false
}

// LifecycleEvent is a typed content-store notification consumed by the
// scheduler. One event per lifecycle-affecting mutation.
type LifecycleEvent struct {
	Kind     EntityKind
	EntityId int64
	ActorId  uuid.UUID

	NewStatus  EntityStatus
	OldStatus  EntityStatus
	Visibility Visibility

	// Action is set for attachment events: "add", "edit" or "delete"
	Action string

	// Sticky transition flags for the featured-collection notification
	StickyChanged bool
	NowSticky     bool

	Context TriageContext
}
