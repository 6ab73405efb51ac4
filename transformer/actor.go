package transformer

import (
	"fmt"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

// ActorTransformer maps a local account to its ActivityPub actor document
type ActorTransformer struct {
	store   ContentStore
	conf    *util.AppConfig
	actorId uuid.UUID
}

func (t *ActorTransformer) ToObject() (ActivityObject, error) {
	err, acc := t.store.ReadAccById(t.actorId)
	if err != nil || acc == nil {
		return nil, fmt.Errorf("%w: actor %s", ErrEntityVanished, t.actorId)
	}
	return BuildActor(t.conf, acc), nil
}

func (t *ActorTransformer) ToID() string {
	err, acc := t.store.ReadAccById(t.actorId)
	if err != nil || acc == nil {
		return ""
	}
	return actorIRI(t.conf.Conf.Domain, acc.Username)
}

func (t *ActorTransformer) ToTombstone() *domain.Object {
	return domain.Tombstone(t.ToID())
}

// BuildActor assembles the full actor document for a local account,
// including the shared inbox endpoint and the featured collection.
func BuildActor(conf *util.AppConfig, acc *domain.Account) *domain.Actor {
	domainName := conf.Conf.Domain
	iri := actorIRI(domainName, acc.Username)

	displayName := acc.DisplayName
	if displayName == "" {
		displayName = acc.Username
	}

	return &domain.Actor{
		Context:           domain.MergeContexts(domain.ContextActivityStreams, domain.ContextSecurity),
		ID:                iri,
		Type:              "Person",
		PreferredUsername: acc.Username,
		Name:              displayName,
		Summary:           acc.Summary,
		URL:               iri,
		Inbox:             iri + "/inbox",
		Outbox:            iri + "/outbox",
		Followers:         followersIRI(domainName, acc.Username),
		Following:         iri + "/following",
		Featured:          featuredIRI(domainName, acc.Username),
		Endpoints:         &domain.Endpoints{SharedInbox: fmt.Sprintf("https://%s/inbox", domainName)},
		PublicKey: domain.PublicKey{
			ID:           iri + "#main-key",
			Owner:        iri,
			PublicKeyPem: acc.WebPublicKey,
		},
		Published: domain.FormatTime(acc.CreatedAt),
	}
}

