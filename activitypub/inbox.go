package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

// IncomingActivity is the envelope shape shared by everything we accept
type IncomingActivity struct {
	Context interface{} `json:"@context"`
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Actor   string      `json:"actor"`
	Object  interface{} `json:"object"`
}

// InboxStore is the persistence surface the inbox needs, satisfied by db.DB
type InboxStore interface {
	ReadAccByUsername(username string) (error, *domain.Account)
	SaveFollower(f *domain.Follower) (error, uuid.UUID)
	ReadFollowerByIRI(iri string) (error, *domain.Follower)
	DeleteFollowerByIRI(iri string, localId uuid.UUID) error
}

// AcceptQueue enqueues outgoing activities, satisfied by outbox.Service
type AcceptQueue interface {
	EnqueueActivity(activity *domain.Activity, actorId uuid.UUID) (*domain.OutboxItem, error)
}

// Inbox processes incoming federation traffic for a local account
type Inbox struct {
	store InboxStore
	queue AcceptQueue
	conf  *util.AppConfig
	fetch func(actorURI string) (*domain.Actor, error)
}

func NewInbox(store InboxStore, queue AcceptQueue, conf *util.AppConfig) *Inbox {
	return &Inbox{
		store: store,
		queue: queue,
		conf:  conf,
		fetch: FetchRemoteActor,
	}
}

// Handle processes one incoming ActivityPub activity for the given account
func (in *Inbox) Handle(w http.ResponseWriter, r *http.Request, username string) {
	if r.Header.Get("Signature") == "" {
		log.Printf("Inbox: Missing HTTP signature")
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var activity IncomingActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	if actorDomain, err := extractDomain(activity.Actor); err == nil && actorDomain == in.conf.Conf.Domain {
		// Our own activities echoed back through a relay, nothing to do
		log.Printf("Inbox: Ignoring activity from local actor %s", activity.Actor)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	remoteActor, err := in.resolveActor(activity.Actor)
	if err != nil {
		log.Printf("Inbox: Failed to resolve actor %s: %v", activity.Actor, err)
		http.Error(w, "Failed to verify actor", http.StatusBadRequest)
		return
	}

	if _, err := VerifyRequest(r, remoteActor.PublicKey.PublicKeyPem); err != nil {
		log.Printf("Inbox: Signature verification failed: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	switch activity.Type {
	case domain.TypeFollow:
		if err := in.handleFollow(&activity, username, remoteActor); err != nil {
			log.Printf("Inbox: Failed to handle Follow: %v", err)
			http.Error(w, "Failed to process Follow", http.StatusInternalServerError)
			return
		}
	case domain.TypeUndo:
		if err := in.handleUndo(body, username, remoteActor); err != nil {
			log.Printf("Inbox: Failed to handle Undo: %v", err)
			http.Error(w, "Failed to process Undo", http.StatusInternalServerError)
			return
		}
	case domain.TypeUpdate:
		if err := in.handleUpdate(&activity, remoteActor); err != nil {
			log.Printf("Inbox: Failed to handle Update: %v", err)
			// Profile refreshes are best-effort, don't fail the request
		}
	case domain.TypeDelete:
		if err := in.handleDelete(&activity, username); err != nil {
			log.Printf("Inbox: Failed to handle Delete: %v", err)
			http.Error(w, "Failed to process Delete", http.StatusInternalServerError)
			return
		}
	default:
		log.Printf("Inbox: Unsupported activity type: %s", activity.Type)
	}

	w.WriteHeader(http.StatusAccepted)
}

// resolveActor returns the actor document for an incoming activity. Known
// followers are served from the directory when their record is fresh.
func (in *Inbox) resolveActor(actorURI string) (*domain.Actor, error) {
	if actorURI == "" {
		return nil, fmt.Errorf("activity missing actor field")
	}

	err, cached := in.store.ReadFollowerByIRI(actorURI)
	if err == nil && cached != nil {
		if time.Since(cached.UpdatedAt) < 24*time.Hour {
			return &cached.Actor, nil
		}
	}

	return in.fetch(actorURI)
}

// handleFollow records the follower and queues an Accept back at them
func (in *Inbox) handleFollow(activity *IncomingActivity, username string, remoteActor *domain.Actor) error {
	target, _ := activity.Object.(string)

	err, localAccount := in.store.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	localIRI := fmt.Sprintf("https://%s/users/%s", in.conf.Conf.Domain, username)
	if target != "" && target != localIRI {
		return fmt.Errorf("follow targets %s, not %s", target, localIRI)
	}

	follower := &domain.Follower{
		Actor:   *remoteActor,
		LocalID: localAccount.Id,
	}
	if !follower.Valid() {
		return fmt.Errorf("follower %s missing required fields", remoteActor.ID)
	}

	err, _ = in.store.SaveFollower(follower)
	if err != nil {
		return fmt.Errorf("failed to save follower: %w", err)
	}

	// Echo the Follow back inside the Accept so the remote side can match it
	accept := &domain.Activity{
		Context: domain.ContextActivityStreams,
		ID:      fmt.Sprintf("https://%s/activities/%s", in.conf.Conf.Domain, uuid.New()),
		Type:    domain.TypeAccept,
		Actor:   localIRI,
		Object: map[string]interface{}{
			"id":     activity.ID,
			"type":   domain.TypeFollow,
			"actor":  activity.Actor,
			"object": localIRI,
		},
		To: []string{remoteActor.ID},
	}

	if _, err := in.queue.EnqueueActivity(accept, localAccount.Id); err != nil {
		return fmt.Errorf("failed to queue Accept: %w", err)
	}

	log.Printf("Inbox: Accepted follow from %s", remoteActor.ID)
	return nil
}

// handleUndo removes the follow relationship when the object is a Follow
func (in *Inbox) handleUndo(body []byte, username string, remoteActor *domain.Actor) error {
	var undo struct {
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		return fmt.Errorf("failed to parse Undo activity: %w", err)
	}

	var obj struct {
		Type  string `json:"type"`
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(undo.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}

	if obj.Type != domain.TypeFollow {
		log.Printf("Inbox: Ignoring Undo of %s", obj.Type)
		return nil
	}

	// Only the follower themselves may undo their follow
	if obj.Actor != "" && obj.Actor != remoteActor.ID {
		return fmt.Errorf("undo actor mismatch: %s", obj.Actor)
	}

	err, localAccount := in.store.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	if err := in.store.DeleteFollowerByIRI(remoteActor.ID, localAccount.Id); err != nil {
		return fmt.Errorf("failed to delete follower: %w", err)
	}

	log.Printf("Inbox: Removed follower %s", remoteActor.ID)
	return nil
}

// handleUpdate refreshes a follower's cached profile
func (in *Inbox) handleUpdate(activity *IncomingActivity, remoteActor *domain.Actor) error {
	obj, ok := activity.Object.(map[string]interface{})
	if !ok {
		return nil
	}

	objType, _ := obj["type"].(string)
	if !domain.ValidActorType(objType) {
		log.Printf("Inbox: Ignoring Update of %s", objType)
		return nil
	}

	fresh, err := in.fetch(remoteActor.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch updated actor: %w", err)
	}

	err, existing := in.store.ReadFollowerByIRI(fresh.ID)
	if err != nil || existing == nil {
		// Not a follower, nothing to refresh
		return nil
	}

	existing.Actor = *fresh
	err, _ = in.store.SaveFollower(existing)
	if err != nil {
		return fmt.Errorf("failed to refresh follower: %w", err)
	}

	log.Printf("Inbox: Refreshed profile for %s", fresh.ID)
	return nil
}

// handleDelete drops the follower when a remote actor deletes their account
func (in *Inbox) handleDelete(activity *IncomingActivity, username string) error {
	var objectURI string
	switch obj := activity.Object.(type) {
	case string:
		objectURI = obj
	case map[string]interface{}:
		if id, ok := obj["id"].(string); ok {
			objectURI = id
		}
	}

	if objectURI == "" || objectURI != activity.Actor {
		// Deletes of remote content don't concern us, we mirror nothing
		return nil
	}

	err, localAccount := in.store.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	if err := in.store.DeleteFollowerByIRI(objectURI, localAccount.Id); err != nil {
		return fmt.Errorf("failed to delete follower: %w", err)
	}

	log.Printf("Inbox: Actor %s deleted their account, follower removed", objectURI)
	return nil
}
