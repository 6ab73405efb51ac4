package web

import (
	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/transformer"
	"github.com/fedpress/fedpress/util"
)

// GetActor renders the actor document for a local account
func GetActor(username string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil {
		return err, "{}"
	}

	actor := transformer.BuildActor(conf, acc)
	doc, err := actor.ToJSON()
	if err != nil {
		return err, "{}"
	}

	return nil, doc
}
