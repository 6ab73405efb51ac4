package transformer

import (
	"fmt"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
)

// PostTransformer maps a post to an Article, Note or Event object
type PostTransformer struct {
	store  ContentStore
	conf   *util.AppConfig
	postId int64
}

func (t *PostTransformer) ToObject() (ActivityObject, error) {
	err, post := t.store.ReadPostById(t.postId)
	if err != nil || post == nil {
		return nil, fmt.Errorf("%w: post %d", ErrEntityVanished, t.postId)
	}

	err, author := t.store.ReadAccById(post.AuthorId)
	if err != nil || author == nil {
		return nil, fmt.Errorf("%w: author of post %d", ErrEntityVanished, t.postId)
	}

	domainName := t.conf.Conf.Domain
	attributedTo := actorIRI(domainName, author.Username)
	audienceTo := []string{domain.PublicAudience}
	audienceCc := []string{followersIRI(domainName, author.Username)}

	if post.Type == "event" {
		return t.toEvent(post, attributedTo, audienceTo, audienceCc)
	}

	obj := &domain.Object{
		ID:           t.ToID(),
		Type:         objectTypeFor(post),
		AttributedTo: attributedTo,
		Name:         post.Title,
		Summary:      post.Excerpt,
		Content:      post.Content,
		URL:          t.ToID(),
		Published:    domain.FormatTime(post.PublishedAt),
		To:           audienceTo,
		Cc:           audienceCc,
	}
	if post.ModifiedAt.After(post.PublishedAt) {
		obj.Updated = domain.FormatTime(post.ModifiedAt)
	}
	return obj, nil
}

func (t *PostTransformer) toEvent(post *domain.Post, attributedTo string, to []string, cc []string) (ActivityObject, error) {
	ev := domain.NewEvent(t.ToID())
	ev.AttributedTo = attributedTo
	ev.Name = post.Title
	ev.Summary = post.Excerpt
	ev.Content = post.Content
	ev.URL = t.ToID()
	ev.Published = domain.FormatTime(post.PublishedAt)
	ev.To = to
	ev.Cc = cc
	if post.EventStart != nil {
		ev.StartTime = domain.FormatTime(*post.EventStart)
	}
	if post.EventEnd != nil {
		ev.EndTime = domain.FormatTime(*post.EventEnd)
	}
	ev.SetCommentsEnabled(post.CommentsOpen)
	if err := ev.SetStatus(domain.EventStatusConfirmed); err != nil {
		return nil, err
	}
	return ev, nil
}

// ToID returns the stable IRI keyed on the numeric post id
func (t *PostTransformer) ToID() string {
	return postIRI(t.conf.Conf.Domain, t.postId)
}

func (t *PostTransformer) ToTombstone() *domain.Object {
	return domain.Tombstone(t.ToID())
}

// objectTypeFor picks Article for titled long-form content, Note otherwise
func objectTypeFor(post *domain.Post) string {
	if post.Title != "" {
		return "Article"
	}
	return "Note"
}
