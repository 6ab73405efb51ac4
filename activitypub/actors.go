package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
)

// ActorResponse represents the JSON structure of a remote ActivityPub actor
type ActorResponse struct {
	Context           interface{} `json:"@context"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name"`
	Summary           string      `json:"summary"`
	URL               string      `json:"url"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	Icon struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// FetchRemoteActor fetches an actor document from a remote server
func FetchRemoteActor(actorURI string) (*domain.Actor, error) {
	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return ParseActor(body)
}

// ParseActor parses a raw actor document into a domain.Actor.
// Fails when required fields for delivery are missing.
func ParseActor(body []byte) (*domain.Actor, error) {
	var resp ActorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if resp.ID == "" || resp.Inbox == "" || resp.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	if !domain.ValidActorType(resp.Type) {
		return nil, fmt.Errorf("unsupported actor type: %q", resp.Type)
	}

	actor := &domain.Actor{
		ID:                resp.ID,
		Type:              resp.Type,
		PreferredUsername: resp.PreferredUsername,
		Name:              resp.Name,
		Summary:           resp.Summary,
		URL:               resp.URL,
		Inbox:             resp.Inbox,
		Outbox:            resp.Outbox,
	}
	// Some servers omit preferredUsername, fall back to the IRI
	if actor.PreferredUsername == "" {
		actor.PreferredUsername = extractUsername(resp.ID)
	}

	actor.PublicKey.ID = resp.PublicKey.ID
	actor.PublicKey.Owner = resp.PublicKey.Owner
	actor.PublicKey.PublicKeyPem = resp.PublicKey.PublicKeyPem

	if resp.Endpoints.SharedInbox != "" {
		actor.Endpoints = &domain.Endpoints{SharedInbox: resp.Endpoints.SharedInbox}
	}
	if resp.Icon.URL != "" {
		actor.Icon = &domain.ActorImage{
			Type:      resp.Icon.Type,
			MediaType: resp.Icon.MediaType,
			URL:       resp.Icon.URL,
		}
	}

	return actor, nil
}

// extractDomain extracts the host from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}

// extractUsername extracts username from various URI formats
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) > 0 {
		username := parts[len(parts)-1]
		return strings.TrimPrefix(username, "@")
	}
	return ""
}
