// Package transformer converts local content entities into ActivityStreams
// objects. One concrete transformer exists per entity kind; the factory
// selects it by kind.
package transformer

import (
	"errors"
	"fmt"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

var (
	// ErrUnsupportedEntity means no transformer exists for the entity kind
	ErrUnsupportedEntity = errors.New("unsupported entity kind")

	// ErrEntityVanished means the entity could not be resolved anymore,
	// e.g. it was deleted between triage and transformation
	ErrEntityVanished = errors.New("entity could not be resolved")
)

// ActivityObject is anything that serializes to a JSON-LD document
type ActivityObject interface {
	ToJSON() (string, error)
}

// ContentStore is the read surface the transformers need. The db package
// implements it; tests substitute fakes.
type ContentStore interface {
	ReadPostById(id int64) (error, *domain.Post)
	ReadAttachmentById(id int64) (error, *domain.Attachment)
	ReadTermById(id int64) (error, *domain.Term)
	ReadCommentById(id int64) (error, *domain.Comment)
	ReadAccById(id uuid.UUID) (error, *domain.Account)
}

// Transformer maps one content entity to its federated representation.
// ToObject must be pure given the entity's persisted state; ToTombstone
// must never dereference fields that may already be gone.
type Transformer interface {
	ToObject() (ActivityObject, error)
	ToID() string
	ToTombstone() *domain.Object
}

// For returns the transformer for the given entity kind. The actor id
// names the local actor the entity belongs to.
func For(store ContentStore, conf *util.AppConfig, kind domain.EntityKind, entityId int64, actorId uuid.UUID) (Transformer, error) {
	switch kind {
	case domain.KindPost:
		return &PostTransformer{store: store, conf: conf, postId: entityId}, nil
	case domain.KindAttachment:
		return &AttachmentTransformer{store: store, conf: conf, attachmentId: entityId}, nil
	case domain.KindTerm:
		return &TermTransformer{store: store, conf: conf, termId: entityId}, nil
	case domain.KindComment:
		return &CommentTransformer{store: store, conf: conf, commentId: entityId}, nil
	case domain.KindActor:
		return &ActorTransformer{store: store, conf: conf, actorId: actorId}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEntity, kind)
}

// IRI helpers. Content IRIs are keyed on numeric ids, never on mutable
// slugs or permalinks, so renames don't break federated references.

func postIRI(domainName string, id int64) string {
	return fmt.Sprintf("https://%s/?p=%d", domainName, id)
}

func attachmentIRI(domainName string, id int64) string {
	return fmt.Sprintf("https://%s/?attachment_id=%d", domainName, id)
}

func termIRI(domainName string, taxonomy string, id int64) string {
	return fmt.Sprintf("https://%s/?taxonomy=%s&term=%d", domainName, taxonomy, id)
}

func commentIRI(domainName string, id int64) string {
	return fmt.Sprintf("https://%s/?c=%d", domainName, id)
}

func actorIRI(domainName string, username string) string {
	return fmt.Sprintf("https://%s/users/%s", domainName, username)
}

func followersIRI(domainName string, username string) string {
	return fmt.Sprintf("https://%s/users/%s/followers", domainName, username)
}

func featuredIRI(domainName string, username string) string {
	return fmt.Sprintf("https://%s/users/%s/collections/featured", domainName, username)
}

// FeaturedCollectionIRI is the Add/Remove target for sticky transitions
func FeaturedCollectionIRI(conf *util.AppConfig, username string) string {
	return featuredIRI(conf.Conf.Domain, username)
}

// ActorIRI builds the canonical IRI of a local actor
func ActorIRI(conf *util.AppConfig, username string) string {
	return actorIRI(conf.Conf.Domain, username)
}

// PostIRI builds the canonical IRI of a local post
func PostIRI(conf *util.AppConfig, id int64) string {
	return postIRI(conf.Conf.Domain, id)
}

// FollowersIRI builds the followers collection IRI of a local actor
func FollowersIRI(conf *util.AppConfig, username string) string {
	return followersIRI(conf.Conf.Domain, username)
}
