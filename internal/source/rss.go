package source

import (
	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"
)

// parseFeedLenient разбирает ленту, которую не принял gofeed.
// rss подставляет текущее время вместо нераспознанной даты и сырую строку не отдает,
// поэтому даты у таких записей остаются неизвестными.
func parseFeedLenient(data []byte) ([]feedEntry, error) {
	feed, err := rss.Parse(data)
	if err != nil {
		return nil, err
	}

	return lo.FilterMap(feed.Items, func(item *rss.Item, _ int) (feedEntry, bool) {
		if item == nil {
			return feedEntry{}, false
		}

		body := item.Content
		if body == "" {
			body = item.Summary
		}

		return feedEntry{
			title:      item.Title,
			body:       body,
			link:       item.Link,
			categories: item.Categories,
		}, true
	}), nil
}
