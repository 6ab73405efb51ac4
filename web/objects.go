package web

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/transformer"
	"github.com/fedpress/fedpress/util"
	"github.com/google/uuid"
)

// GetObjectDocument renders a content entity as an ActivityStreams document
func GetObjectDocument(kind domain.EntityKind, entityId int64, conf *util.AppConfig) (error, string) {
	tf, err := transformer.For(db.GetDB(), conf, kind, entityId, uuid.Nil)
	if err != nil {
		return err, "{}"
	}

	obj, err := tf.ToObject()
	if err != nil {
		return err, "{}"
	}

	doc, err := obj.ToJSON()
	if err != nil {
		return err, "{}"
	}

	return nil, doc
}

func parseEnvelope(body []byte) (map[string]interface{}, error) {
	var activity map[string]interface{}
	if err := json.Unmarshal(body, &activity); err != nil {
		return nil, err
	}
	return activity, nil
}

func newReplayBody(body []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(body))
}
