package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSON-LD context URIs used when serializing federated objects
const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	ContextSecurity        = "https://w3id.org/security/v1"

	// PublicAudience addresses an activity to the special public collection
	PublicAudience = "https://www.w3.org/ns/activitystreams#Public"
)

// Activity types emitted by the scheduler and delivered to remote inboxes
const (
	TypeCreate = "Create"
	TypeUpdate = "Update"
	TypeDelete = "Delete"
	TypeAdd    = "Add"
	TypeRemove = "Remove"
	TypeFollow = "Follow"
	TypeAccept = "Accept"
	TypeUndo   = "Undo"
)

// ObjectAttachment is a media attachment on an object (Image/Video/Audio/Document)
type ObjectAttachment struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
}

// Tag is a hashtag or mention attached to an object
type Tag struct {
	Type string `json:"type"`
	Href string `json:"href,omitempty"`
	Name string `json:"name"`
}

// Object is a generic ActivityStreams object. Fields not set are omitted
// from the serialized JSON-LD document.
type Object struct {
	Context      interface{}        `json:"@context,omitempty"`
	ID           string             `json:"id"`
	Type         string             `json:"type,omitempty"`
	AttributedTo string             `json:"attributedTo,omitempty"`
	Name         string             `json:"name,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Content      string             `json:"content,omitempty"`
	MediaType    string             `json:"mediaType,omitempty"`
	URL          string             `json:"url,omitempty"`
	Published    string             `json:"published,omitempty"`
	Updated      string             `json:"updated,omitempty"`
	InReplyTo    string             `json:"inReplyTo,omitempty"`
	Sensitive    bool               `json:"sensitive,omitempty"`
	Attachment   []ObjectAttachment `json:"attachment,omitempty"`
	Tag          []Tag              `json:"tag,omitempty"`
	To           []string           `json:"to,omitempty"`
	Cc           []string           `json:"cc,omitempty"`
}

// ToJSON serializes the object as a JSON-LD document. If no context has
// been set, the plain ActivityStreams context is applied.
func (o *Object) ToJSON() (string, error) {
	if o.Context == nil {
		o.Context = ContextActivityStreams
	}
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("failed to marshal object: %w", err)
	}
	return string(b), nil
}

// Tombstone builds the minimal object representing a deleted resource.
// It carries only id and type so it never dereferences deleted state.
func Tombstone(id string) *Object {
	return &Object{
		ID:   id,
		Type: "Tombstone",
	}
}

// Activity is the ActivityStreams action envelope naming actor, object
// and optional target, with to/cc audience lists.
type Activity struct {
	Context   interface{} `json:"@context,omitempty"`
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Actor     string      `json:"actor"`
	Object    interface{} `json:"object,omitempty"`
	Target    string      `json:"target,omitempty"`
	Published string      `json:"published,omitempty"`
	To        []string    `json:"to,omitempty"`
	Cc        []string    `json:"cc,omitempty"`
}

// ToJSON serializes the activity, defaulting the context like Object.ToJSON
func (a *Activity) ToJSON() (string, error) {
	if a.Context == nil {
		a.Context = ContextActivityStreams
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to marshal activity: %w", err)
	}
	return string(b), nil
}

// MergeContexts flattens JSON-LD context entries into a single context
// array. URI strings are kept in first-seen order; map entries are merged
// into one trailing map where later definitions override earlier ones.
func MergeContexts(contexts ...interface{}) []interface{} {
	var uris []string
	seen := make(map[string]bool)
	merged := make(map[string]interface{})

	var add func(c interface{})
	add = func(c interface{}) {
		switch v := c.(type) {
		case string:
			if !seen[v] {
				seen[v] = true
				uris = append(uris, v)
			}
		case []interface{}:
			for _, entry := range v {
				add(entry)
			}
		case map[string]interface{}:
			for key, def := range v {
				merged[key] = def
			}
		case map[string]string:
			for key, def := range v {
				merged[key] = def
			}
		}
	}

	for _, c := range contexts {
		add(c)
	}

	result := make([]interface{}, 0, len(uris)+1)
	for _, uri := range uris {
		result = append(result, uri)
	}
	if len(merged) > 0 {
		result = append(result, merged)
	}
	return result
}

// FormatTime renders a timestamp the way remote servers expect it
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
