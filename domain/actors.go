package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PublicKey is the signing key block embedded in actor documents
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Endpoints carries the shared inbox of an actor's server, if it has one
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// ActorImage is an icon or header image on an actor profile
type ActorImage struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
}

// Actor is a federated identity. For local actors the site owns the keys;
// for remote actors this is a cached mirror of their published document.
type Actor struct {
	Context           interface{} `json:"@context,omitempty"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name,omitempty"`
	Summary           string      `json:"summary,omitempty"`
	URL               string      `json:"url,omitempty"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox,omitempty"`
	Followers         string      `json:"followers,omitempty"`
	Following         string      `json:"following,omitempty"`
	Featured          string      `json:"featured,omitempty"`
	Endpoints         *Endpoints  `json:"endpoints,omitempty"`
	PublicKey         PublicKey   `json:"publicKey"`
	Icon              *ActorImage `json:"icon,omitempty"`
	Image             *ActorImage `json:"image,omitempty"`
	Published         string      `json:"published,omitempty"`
}

// ToJSON serializes the actor document. Newlines in the PEM survive
// json.Marshal, so no manual escaping is needed.
func (a *Actor) ToJSON() (string, error) {
	if a.Context == nil {
		a.Context = MergeContexts(ContextActivityStreams, ContextSecurity)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to marshal actor: %w", err)
	}
	return string(b), nil
}

// ValidActorType reports whether t is one of the federated identity types
func ValidActorType(t string) bool {
	switch t {
	case "Person", "Application", "Group", "Service":
		return true
	}
	return false
}

// SharedInbox returns the shared inbox URL or empty when none is advertised
func (a *Actor) SharedInbox() string {
	if a.Endpoints == nil {
		return ""
	}
	return a.Endpoints.SharedInbox
}

// DeliveryError is one failed delivery attempt recorded against a follower
type DeliveryError struct {
	Time    time.Time `json:"time"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
}

// Follower is a remote actor subscribed to a local actor's outbox. The
// record key is local; the actor IRI (Actor.ID) deduplicates saves.
type Follower struct {
	Actor

	RecordID  uuid.UUID       `json:"-"`
	LocalID   uuid.UUID       `json:"-"` // local actor being followed
	Errors    []DeliveryError `json:"-"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
}

// Valid reports whether the follower carries everything delivery needs.
// Invalid followers must never be persisted.
func (f *Follower) Valid() bool {
	return f.ID != "" &&
		f.PreferredUsername != "" &&
		f.Inbox != "" &&
		f.PublicKey.ID != "" &&
		f.PublicKey.PublicKeyPem != ""
}

// TargetInbox resolves the inbox to deliver to, preferring the shared inbox
func (f *Follower) TargetInbox() string {
	if shared := f.SharedInbox(); shared != "" {
		return shared
	}
	return f.Inbox
}

// Account is a local publishing actor with its signing keypair
type Account struct {
	Id            uuid.UUID
	Username      string
	DisplayName   string
	Summary       string
	WebPublicKey  string
	WebPrivateKey string
	CreatedAt     time.Time
}
