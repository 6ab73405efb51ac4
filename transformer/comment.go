package transformer

import (
	"fmt"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
)

// CommentTransformer maps a comment to a Note replying to its post
type CommentTransformer struct {
	store     ContentStore
	conf      *util.AppConfig
	commentId int64
}

func (t *CommentTransformer) ToObject() (ActivityObject, error) {
	err, comment := t.store.ReadCommentById(t.commentId)
	if err != nil || comment == nil {
		return nil, fmt.Errorf("%w: comment %d", ErrEntityVanished, t.commentId)
	}

	domainName := t.conf.Conf.Domain
	attributedTo := ""
	audienceCc := []string{}
	if err, author := t.store.ReadAccById(comment.AuthorId); err == nil && author != nil {
		attributedTo = actorIRI(domainName, author.Username)
		audienceCc = append(audienceCc, followersIRI(domainName, author.Username))
	}

	obj := &domain.Object{
		ID:           t.ToID(),
		Type:         "Note",
		AttributedTo: attributedTo,
		Content:      comment.Content,
		InReplyTo:    postIRI(domainName, comment.PostId),
		Published:    domain.FormatTime(comment.CreatedAt),
		To:           []string{domain.PublicAudience},
		Cc:           audienceCc,
	}
	return obj, nil
}

func (t *CommentTransformer) ToID() string {
	return commentIRI(t.conf.Conf.Domain, t.commentId)
}

func (t *CommentTransformer) ToTombstone() *domain.Object {
	return domain.Tombstone(t.ToID())
}
