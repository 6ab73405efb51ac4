package activitypub

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

// FollowerDirectory is the follower and key storage the deliverer needs,
// satisfied by db.DB.
type FollowerDirectory interface {
	ReadAccById(id uuid.UUID) (error, *domain.Account)
	ReadFollowersByLocalId(localId uuid.UUID) (error, *[]domain.Follower)
	AppendFollowerError(recordId uuid.UUID, deliveryErr domain.DeliveryError) (error, int)
	ClearFollowerErrors(recordId uuid.UUID) error
	DeleteFollowerByIRI(iri string, localId uuid.UUID) error
}

// Queue is the outbox surface the worker drains, satisfied by outbox.Service.
type Queue interface {
	DequeueBatch(max int) ([]domain.OutboxItem, error)
	MarkComplete(item *domain.OutboxItem) error
	MarkFailed(item *domain.OutboxItem, deliveryErr error) error
	PruneCompleted(retention time.Duration)
}

// Deliverer fans activities out to follower inboxes
type Deliverer struct {
	directory FollowerDirectory
	conf      *util.AppConfig
	client    *http.Client
}

func NewDeliverer(directory FollowerDirectory, conf *util.AppConfig) *Deliverer {
	timeout := time.Duration(conf.Conf.DeliveryTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Deliverer{
		directory: directory,
		conf:      conf,
		client:    &http.Client{Timeout: timeout},
	}
}

// StartDeliveryWorker starts a background worker that drains the outbox
func StartDeliveryWorker(queue Queue, deliverer *Deliverer, conf *util.AppConfig) {
	log.Println("Starting ActivityPub delivery worker...")

	interval := time.Duration(conf.Conf.DeliveryIntervalSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		lastPrune := time.Now()
		for range ticker.C {
			processQueue(queue, deliverer, conf)

			if time.Since(lastPrune) > time.Hour {
				queue.PruneCompleted(30 * 24 * time.Hour)
				lastPrune = time.Now()
			}
		}
	}()
}

// processQueue claims and delivers one batch of outbox items
func processQueue(queue Queue, deliverer *Deliverer, conf *util.AppConfig) {
	batchSize := conf.Conf.DeliveryBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	items, err := queue.DequeueBatch(batchSize)
	if err != nil {
		log.Printf("DeliveryWorker: Failed to claim batch: %v", err)
		return
	}

	if len(items) == 0 {
		return
	}

	log.Printf("DeliveryWorker: Processing %d outbox items", len(items))

	for i := range items {
		item := &items[i]
		if err := deliverer.Deliver(item); err != nil {
			log.Printf("DeliveryWorker: Item %s (%s) failed: %v", item.Id, item.ActivityType, err)
			queue.MarkFailed(item, err)
		} else {
			queue.MarkComplete(item)
		}
	}
}

// Deliver sends one outbox item to every follower of the acting account.
// Recipients sharing an inbox URL get a single request. A returned error
// means nothing was delivered and the item should be marked failed;
// individual unreachable inboxes are recorded on the follower instead.
func (d *Deliverer) Deliver(item *domain.OutboxItem) error {
	err, acc := d.directory.ReadAccById(item.ActorId)
	if err != nil {
		return fmt.Errorf("failed to read account: %w", err)
	}

	privateKey, err := ParsePrivateKey(acc.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	err, followers := d.directory.ReadFollowersByLocalId(item.ActorId)
	if err != nil {
		return fmt.Errorf("failed to read followers: %w", err)
	}

	if followers == nil || len(*followers) == 0 {
		return nil
	}

	// One request per inbox URL, however many followers share it
	inboxes := make(map[string][]domain.Follower)
	for _, f := range *followers {
		target := f.TargetInbox()
		inboxes[target] = append(inboxes[target], f)
	}

	keyId := fmt.Sprintf("https://%s/users/%s#main-key", d.conf.Conf.Domain, acc.Username)

	delivered := 0
	for inboxURL, recipients := range inboxes {
		status, sendErr := d.send(inboxURL, item.ActivityJSON, privateKey, keyId)
		if sendErr != nil {
			log.Printf("Deliverer: Delivery to %s failed: %v", inboxURL, sendErr)
			d.recordFailure(recipients, status, sendErr)
			continue
		}

		delivered++
		for _, f := range recipients {
			if len(f.Errors) > 0 {
				if err := d.directory.ClearFollowerErrors(f.RecordID); err != nil {
					log.Printf("Deliverer: Failed to clear errors for %s: %v", f.ID, err)
				}
			}
		}
	}

	if delivered == 0 {
		return fmt.Errorf("all %d inboxes unreachable", len(inboxes))
	}

	return nil
}

// recordFailure appends a delivery error to every recipient behind a dead
// inbox and drops followers whose count crossed the error threshold. The
// append happens inside the store, so a concurrent worker holding a stale
// follower snapshot cannot erase it.
func (d *Deliverer) recordFailure(recipients []domain.Follower, status int, cause error) {
	threshold := d.conf.Conf.FollowerErrorThreshold
	if threshold <= 0 {
		threshold = 5
	}

	for _, f := range recipients {
		err, count := d.directory.AppendFollowerError(f.RecordID, domain.DeliveryError{
			Time:    time.Now().UTC(),
			Status:  status,
			Message: cause.Error(),
		})
		if err != nil {
			log.Printf("Deliverer: Failed to record error for %s: %v", f.ID, err)
			continue
		}

		if count >= threshold {
			log.Printf("Deliverer: Removing follower %s after %d consecutive failures", f.ID, count)
			if err := d.directory.DeleteFollowerByIRI(f.ID, f.LocalID); err != nil {
				log.Printf("Deliverer: Failed to remove follower %s: %v", f.ID, err)
			}
		}
	}
}

// send signs and POSTs an activity to a single inbox
func (d *Deliverer) send(inboxURL string, activityJSON string, privateKey *rsa.PrivateKey, keyId string) (int, error) {
	body := []byte(activityJSON)

	// The signer covers the digest header, it does not compute it
	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", inboxURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	if err := SignRequest(req, privateKey, keyId); err != nil {
		return 0, fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	return resp.StatusCode, nil
}
