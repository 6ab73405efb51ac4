package web

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/fedpress/fedpress/activitypub"
	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/outbox"
	"github.com/fedpress/fedpress/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/time/rate"
)

const activityJSONType = "application/activity+json; charset=utf-8"

func Router(conf *util.AppConfig, queue *outbox.Service, events chan<- domain.LifecycleEvent) error {
	log.Printf("Starting federation server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter rate limit for inbound federation traffic: 5 req/sec per IP
	apLimiter := NewRateLimiter(rate.Limit(5), 10)

	// Max 1MB request body size for incoming activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	inbox := activitypub.NewInbox(db.GetDB(), queue, conf)

	// Content objects live at query-keyed IRIs off the root
	g.GET("/", func(c *gin.Context) {
		HandleObject(c, conf)
	})

	// RSS feed per author
	g.GET("/feed/:username", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		rss, err := GetRSS(conf, c.Param("username"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/users/:actor", func(c *gin.Context) {
		c.Header("Content-Type", activityJSONType)
		err, actor := GetActor(c.Param("actor"), conf)
		if err != nil {
			c.Render(404, render.String{Format: actor})
		} else {
			c.Render(200, render.String{Format: actor})
		}
	})

	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		log.Println("POST /inbox (shared inbox)")
		username, ok := sharedInboxTarget(c, conf)
		if !ok {
			return
		}
		inbox.Handle(c.Writer, c.Request, username)
	})

	g.POST("/users/:actor/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		actor := c.Param("actor")
		log.Printf("POST /users/%s/inbox", actor)
		inbox.Handle(c.Writer, c.Request, actor)
	})

	g.GET("/users/:actor/outbox", func(c *gin.Context) {
		c.Header("Content-Type", activityJSONType)

		page, _ := strconv.Atoi(c.Query("page"))
		err, doc := GetOutboxCollection(c.Param("actor"), page, conf)
		if err != nil {
			c.Render(404, render.String{Format: doc})
		} else {
			c.Render(200, render.String{Format: doc})
		}
	})

	g.GET("/users/:actor/followers", func(c *gin.Context) {
		c.Header("Content-Type", activityJSONType)

		err, doc := GetFollowersCollection(c.Param("actor"), conf)
		if err != nil {
			c.Render(404, render.String{Format: doc})
		} else {
			c.Render(200, render.String{Format: doc})
		}
	})

	g.GET("/users/:actor/collections/featured", func(c *gin.Context) {
		c.Header("Content-Type", activityJSONType)

		err, doc := GetFeaturedCollection(c.Param("actor"), conf)
		if err != nil {
			c.Render(404, render.String{Format: doc})
		} else {
			c.Render(200, render.String{Format: doc})
		}
	})

	// Content mutations reported by the publishing side. Each upsert is
	// persisted and handed to the scheduler for triage.
	g.POST("/content/posts", func(c *gin.Context) {
		HandlePostUpsert(c, conf, events)
	})

	g.POST("/content/attachments", func(c *gin.Context) {
		HandleAttachmentUpsert(c, conf, events)
	})

	g.POST("/content/terms", func(c *gin.Context) {
		HandleTermUpsert(c, conf, events)
	})

	g.POST("/content/comments", func(c *gin.Context) {
		HandleCommentUpsert(c, conf, events)
	})

	// Operational view of the delivery queue
	g.GET("/outbox/items", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")

		limit, _ := strconv.Atoi(c.Query("limit"))
		err, doc := GetOutboxItems(db.GetDB(), c.Query("status"), limit)
		if err != nil {
			c.Render(500, render.String{Format: doc})
		} else {
			c.Render(200, render.String{Format: doc})
		}
	})

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")

		resource := c.Query("resource")
		if resource == "" || !strings.HasPrefix(resource, "acct:") {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
		} else {
			resource = strings.TrimPrefix(resource, "acct:")
			resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.Domain))
			err, resp := GetWebfinger(resource, conf)
			if err != nil {
				c.Render(404, render.String{Format: GetWebFingerNotFound()})
			} else {
				c.Render(200, render.String{Format: resp})
			}
		}
	})

	err := g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
	if err != nil {
		return err
	}
	return nil
}

// sharedInboxTarget extracts the local account an incoming activity is
// addressed to. Activities without a resolvable local target are accepted
// and dropped.
func sharedInboxTarget(c *gin.Context, conf *util.AppConfig) (string, bool) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Shared inbox: Failed to read body: %v", err)
		c.Status(400)
		return "", false
	}

	// Put the body back for the per-actor handler
	c.Request.Body = newReplayBody(body)

	activity, err := parseEnvelope(body)
	if err != nil {
		log.Printf("Shared inbox: Failed to parse activity: %v", err)
		c.Status(400)
		return "", false
	}

	username := LocalUsernameFromActivity(activity, conf.Conf.Domain)
	if username == "" {
		log.Printf("Shared inbox: Could not determine target for activity type %v", activity["type"])
		c.Status(202)
		return "", false
	}

	log.Printf("Shared inbox: Routing to user %s", username)
	return username, true
}

// LocalUsernameFromActivity finds a local user in the activity addressing.
// Checks "to", then "cc", then the "object" of a Follow.
func LocalUsernameFromActivity(activity map[string]interface{}, domainName string) string {
	extract := func(uri string) string {
		if !strings.Contains(uri, domainName) || !strings.Contains(uri, "/users/") {
			return ""
		}
		parts := strings.Split(uri, "/")
		for i, part := range parts {
			if part == "users" && i+1 < len(parts) {
				username := parts[i+1]
				// Strip /followers and similar suffixes
				if slashIdx := strings.Index(username, "/"); slashIdx > 0 {
					username = username[:slashIdx]
				}
				return username
			}
		}
		return ""
	}

	for _, field := range []string{"to", "cc"} {
		if values, ok := activity[field].([]interface{}); ok {
			for _, v := range values {
				if uri, ok := v.(string); ok {
					if username := extract(uri); username != "" {
						return username
					}
				}
			}
		}
	}

	if objStr, ok := activity["object"].(string); ok {
		return extract(objStr)
	}

	return ""
}

// HandleObject serves content objects addressed by query-keyed IRIs:
// /?p=N for posts, /?attachment_id=N, /?taxonomy=X&term=N, /?c=N.
func HandleObject(c *gin.Context, conf *util.AppConfig) {
	kind, entityId, ok := objectQuery(c)
	if !ok {
		c.JSON(404, gin.H{"error": "Not found"})
		return
	}

	err, doc := GetObjectDocument(kind, entityId, conf)
	if err != nil {
		c.JSON(404, gin.H{"error": "Not found"})
		return
	}

	c.Header("Content-Type", activityJSONType)
	c.Render(200, render.String{Format: doc})
}

func objectQuery(c *gin.Context) (domain.EntityKind, int64, bool) {
	params := []struct {
		query string
		kind  domain.EntityKind
	}{
		{"p", domain.KindPost},
		{"attachment_id", domain.KindAttachment},
		{"term", domain.KindTerm},
		{"c", domain.KindComment},
	}

	for _, p := range params {
		if raw := c.Query(p.query); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return "", 0, false
			}
			return p.kind, id, true
		}
	}

	return "", 0, false
}
