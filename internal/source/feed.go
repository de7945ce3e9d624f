package source

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

// Запись ленты до нормализации, общая для gofeed и rss
type feedEntry struct {
	title      string
	body       string
	link       string
	categories []string
	date       *time.Time
	rawDate    string
}

// FetchFeed забирает RSS/Atom ленту и возвращает до maxItems самых свежих статей.
// Битые и слишком короткие записи пропускаются, остальные обрабатываются.
func (l *Loader) FetchFeed(ctx context.Context, url string) ([]model.Item, error) {
	data, err := l.get(ctx, url)
	if err != nil {
		return nil, err
	}

	entries, err := parseFeed(data)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	// Упорядочиваем по дате только если она есть у всех, иначе оставляем порядок ленты
	if lo.EveryBy(entries, func(e feedEntry) bool { return e.date != nil }) {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].date.After(*entries[j].date)
		})
	}

	if l.maxItems > 0 && len(entries) > l.maxItems {
		entries = entries[:l.maxItems]
	}

	items := make([]model.Item, 0, len(entries))
	for _, entry := range entries {
		item, ok := l.normalizeEntry(entry, url)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func (l *Loader) normalizeEntry(entry feedEntry, feedURL string) (item model.Item, ok bool) {
	// Одна кривая запись не должна ронять всю ленту
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[WARN] skipping malformed entry %q from %s: %v", entry.title, feedURL, p)
			ok = false
		}
	}()

	text := stripMarkup(entry.body)
	if !l.longEnough(text) {
		return model.Item{}, false
	}

	title := strings.TrimSpace(stripMarkup(entry.title))
	if title == "" {
		title = "Untitled"
	}

	link := strings.TrimSpace(entry.link)
	if link == "" {
		link = feedURL
	}

	date := entry.date
	if date == nil {
		date = parseDate(entry.rawDate)
	}

	return model.Item{
		Title:       title,
		Content:     text,
		Link:        link,
		Categories:  entry.categories,
		PublishDate: date,
	}, true
}

func parseFeed(data []byte) ([]feedEntry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		// gofeed строгий, пробуем более терпимый парсер
		entries, fallbackErr := parseFeedLenient(data)
		if fallbackErr != nil {
			return nil, err
		}
		return entries, nil
	}

	entries := make([]feedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		// Тело берем из content, если его нет, то из description
		body := item.Content
		if strings.TrimSpace(body) == "" {
			body = item.Description
		}

		date := item.PublishedParsed
		if date == nil {
			date = item.UpdatedParsed
		}
		if date != nil {
			d := date.UTC()
			date = &d
		}

		entries = append(entries, feedEntry{
			title:      item.Title,
			body:       body,
			link:       item.Link,
			categories: item.Categories,
			date:       date,
			rawDate:    item.Published,
		})
	}

	return entries, nil
}

// stripMarkup убирает html теги и сущности, схлопывает пробелы
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// parseDate приводит дату из произвольной строки к UTC. Не распознали - nil, ничего не угадываем.
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil
	}

	t = t.UTC()
	return &t
}
