package transformer

import (
	"fmt"
	"strings"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
)

// AttachmentTransformer maps a media attachment to its ActivityStreams
// media sub-type derived from the MIME prefix
type AttachmentTransformer struct {
	store        ContentStore
	conf         *util.AppConfig
	attachmentId int64
}

func (t *AttachmentTransformer) ToObject() (ActivityObject, error) {
	err, att := t.store.ReadAttachmentById(t.attachmentId)
	if err != nil || att == nil {
		return nil, fmt.Errorf("%w: attachment %d", ErrEntityVanished, t.attachmentId)
	}

	obj := &domain.Object{
		ID:        t.ToID(),
		Type:      MediaType(att.MimeType),
		MediaType: att.MimeType,
		URL:       att.URL,
		Name:      att.AltText,
	}
	return obj, nil
}

func (t *AttachmentTransformer) ToID() string {
	return attachmentIRI(t.conf.Conf.Domain, t.attachmentId)
}

func (t *AttachmentTransformer) ToTombstone() *domain.Object {
	return domain.Tombstone(t.ToID())
}

// MediaType derives the ActivityStreams media sub-type from a MIME type
// prefix. Unknown prefixes leave the type unset.
func MediaType(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "Image"
	case strings.HasPrefix(mimeType, "video/"):
		return "Video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "Audio"
	}
	return ""
}
