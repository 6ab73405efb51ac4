package web

import (
	"fmt"

	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/util"
)

func GetWebfinger(user string, conf *util.AppConfig) (error, string) {

	err, acc := db.GetDB().ReadAccByUsername(user)
	if err != nil {
		return err, GetWebFingerNotFound()
	}

	return nil, FormatWebfinger(acc.Username, conf.Conf.Domain)
}

// FormatWebfinger renders the webfinger document for a local account
func FormatWebfinger(username string, domain string) string {
	return fmt.Sprintf(
		`{
					"subject": "acct:%s@%s",

					"links": [
						{
							"rel": "self",
							"type": "application/activity+json",
							"href": "https://%s/users/%s"
						}
					]
				}`, username, domain, domain, username)
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
