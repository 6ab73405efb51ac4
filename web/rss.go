package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/transformer"
	"github.com/fedpress/fedpress/util"
	"github.com/gorilla/feeds"
)

// GetRSS renders a feed of an author's federated posts, newest first
func GetRSS(conf *util.AppConfig, username string) (string, error) {
	database := db.GetDB()

	err, acc := database.ReadAccByUsername(username)
	if err != nil {
		log.Printf("Could not get account %s: %v", username, err)
		return "", errors.New("error retrieving account by username")
	}

	err, posts := database.ReadFederatedPostsByAuthor(acc.Id, 50)
	if err != nil {
		log.Printf("Could not get posts from %s: %v", username, err)
		return "", errors.New("error retrieving posts by author")
	}

	author := acc.DisplayName
	if author == "" {
		author = acc.Username
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("fedpress - %s", author),
		Link:        &feeds.Link{Href: transformer.ActorIRI(conf, acc.Username)},
		Description: acc.Summary,
		Author:      &feeds.Author{Name: author, Email: fmt.Sprintf("%s@%s", acc.Username, conf.Conf.Domain)},
		Created:     time.Now(),
	}

	feed.Items = FeedItems(*posts, author, conf)
	return feed.ToRss()
}

// FeedItems converts federated posts into feed entries
func FeedItems(posts []domain.Post, author string, conf *util.AppConfig) []*feeds.Item {
	var items []*feeds.Item
	for _, post := range posts {
		title := post.Title
		if title == "" {
			title = post.PublishedAt.Format(util.DateTimeFormat())
		}

		items = append(items, &feeds.Item{
			Id:      transformer.PostIRI(conf, post.Id),
			Title:   title,
			Link:    &feeds.Link{Href: transformer.PostIRI(conf, post.Id)},
			Content: post.Content,
			Author:  &feeds.Author{Name: author},
			Created: post.PublishedAt,
			Updated: post.ModifiedAt,
		})
	}
	return items
}
