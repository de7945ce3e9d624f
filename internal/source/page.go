package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

// Где обычно лежит дата публикации на странице статьи
var publishDateSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[name="article:published_time"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`meta[name="publish-date"]`, "content"},
	{`time[datetime]`, "datetime"},
}

// FetchPage скачивает одну HTML страницу и вытаскивает из нее основной текст.
// Возвращает не больше одной статьи, если текста мало, то ни одной.
func (l *Loader) FetchPage(ctx context.Context, pageURL string) ([]model.Item, error) {
	body, err := l.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return nil, fmt.Errorf("extract content from %s: %w", pageURL, err)
	}

	text := cleanText(article.TextContent)
	if !l.longEnough(text) {
		return nil, nil
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = "Untitled"
	}

	return []model.Item{
		{
			Title:       title,
			Content:     text,
			Link:        pageURL,
			PublishDate: pagePublishDate(body),
		},
	}, nil
}

// pagePublishDate ищет дату публикации в мета тегах и <time>
func pagePublishDate(body []byte) *time.Time {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	for _, s := range publishDateSelectors {
		value, ok := doc.Find(s.selector).First().Attr(s.attr)
		if !ok {
			continue
		}
		if date := parseDate(value); date != nil {
			return date
		}
	}

	return nil
}
