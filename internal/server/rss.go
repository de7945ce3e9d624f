package server

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

// GenerateRSSFeed собирает rss ленту из событий набора
func GenerateRSSFeed(setName string, events []model.EventWithContext, feedLink string) (string, error) {
	link := strings.TrimRight(feedLink, "/")

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Competitor events: %s", setName),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/sets/%s/events.rss", link, url.PathEscape(setName))},
		Description: fmt.Sprintf("Classified competitor events for %s", setName),
		Author:      &feeds.Author{Name: "competitor-scout"},
		Created:     time.Now(),
	}

	feed.Items = make([]*feeds.Item, 0, len(events))
	for _, e := range events {
		item := &feeds.Item{
			Title:       fmt.Sprintf("[%s] %s: %s", e.Category, e.CompetitorName, e.ArticleTitle),
			Link:        &feeds.Link{Href: e.ArticleURL},
			Id:          fmt.Sprintf("%s/events/%d", link, e.ID),
			Description: eventDescription(e),
			Author:      &feeds.Author{Name: e.CompetitorName},
		}

		// Дата публикации, а если ее нет, то время классификации
		if e.PublishDate != nil {
			item.Created = *e.PublishDate
		} else {
			item.Created = e.CreatedAt
		}

		feed.Items = append(feed.Items, item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to generate RSS: %w", err)
	}

	return rss, nil
}

func eventDescription(e model.EventWithContext) string {
	description := fmt.Sprintf("%s (impact: %s, confidence: %.2f)", e.Summary, e.ImpactLevel, e.Confidence)
	if len(e.Entities) > 0 {
		description += " Entities: " + strings.Join(e.Entities, ", ")
	}
	return description
}
