package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tomakado/containers/set"
	"golang.org/x/sync/errgroup"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
	"github.com/kovalyov-valentin/competitor-scout/internal/ratelimit"
)

type ArticleStorage interface {
	// Store возвращает inserted=false для дубля по хэшу контента
	Store(ctx context.Context, article model.Article) (int64, bool, error)
}

type SourceProvider interface {
	SourcesByCompetitor(ctx context.Context, competitorID int64) ([]model.Source, error)
	MarkFetched(ctx context.Context, id int64) error
}

type CompetitorProvider interface {
	CompetitorsBySet(ctx context.Context, setName string) ([]model.Competitor, error)
	SetNames(ctx context.Context) ([]string, error)
}

// Loader умеет забирать статьи из ленты и со страницы
type Loader interface {
	FetchFeed(ctx context.Context, url string) ([]model.Item, error)
	FetchPage(ctx context.Context, url string) ([]model.Item, error)
}

// Результат обхода одного источника
type SourceTally struct {
	New        int
	Duplicates int
	Filtered   int
}

// Структура сборщика
type Fetcher struct {
	articles    ArticleStorage
	sources     SourceProvider
	competitors CompetitorProvider
	loader      Loader

	// Общий на все воркеры лимитер запросов по доменам
	limiter *ratelimit.DomainLimiter
	// Сколько источников одного конкурента обходим параллельно
	concurrency int
	// Фильтрация статей по ключевым словами
	filterKeywords []string
}

func NewFetcher(
	articles ArticleStorage,
	sources SourceProvider,
	competitors CompetitorProvider,
	loader Loader,
	limiter *ratelimit.DomainLimiter,
	concurrency int,
	filterKeywords []string,
) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}

	keywords := lo.Map(filterKeywords, func(k string, _ int) string {
		return strings.ToLower(strings.TrimSpace(k))
	})

	return &Fetcher{
		articles:       articles,
		sources:        sources,
		competitors:    competitors,
		loader:         loader,
		limiter:        limiter,
		concurrency:    concurrency,
		filterKeywords: keywords,
	}
}

// IngestSource забирает статьи одного источника и сохраняет их.
// Источник помечается как обработанный при любом исходе, кроме неизвестного типа.
// Ошибка сохранения одной статьи не мешает остальным, все такие ошибки возвращаются вместе.
func (f *Fetcher) IngestSource(ctx context.Context, src model.Source) (SourceTally, error) {
	var tally SourceTally

	var fetch func(ctx context.Context, url string) ([]model.Item, error)
	switch src.Kind {
	case model.SourceKindRSS:
		fetch = f.loader.FetchFeed
	case model.SourceKindHTML:
		fetch = f.loader.FetchPage
	default:
		log.Printf("[WARN] source %d (%s) has unknown kind %q, skipping", src.ID, src.URL, src.Kind)
		return tally, nil
	}

	defer func() {
		if err := f.sources.MarkFetched(ctx, src.ID); err != nil {
			log.Printf("[ERROR] failed to mark source %d fetched: %v", src.ID, err)
		}
	}()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, src.URL); err != nil {
			return tally, err
		}
	}

	items, err := fetch(ctx, src.URL)
	if err != nil {
		return tally, fmt.Errorf("fetch %s: %w", src.URL, err)
	}

	var storeErrs []error
	for _, item := range items {
		if f.itemShouldBeSkipped(item) {
			tally.Filtered++
			continue
		}

		_, inserted, err := f.articles.Store(ctx, model.Article{
			SourceID:    src.ID,
			Title:       item.Title,
			Content:     item.Content,
			URL:         item.Link,
			PublishDate: item.PublishDate,
		})
		if err != nil {
			log.Printf("[ERROR] failed to store article %s from %s: %v", item.Link, src.URL, err)
			storeErrs = append(storeErrs, fmt.Errorf("store article %s: %w", item.Link, err))
			continue
		}

		if inserted {
			tally.New++
		} else {
			tally.Duplicates++
		}
	}

	if err := errors.Join(storeErrs...); err != nil {
		return tally, fmt.Errorf("store articles from %s: %w", src.URL, err)
	}

	return tally, nil
}

// IngestCompetitor обходит все активные источники конкурента.
// Ошибка одного источника считается и не мешает остальным.
func (f *Fetcher) IngestCompetitor(ctx context.Context, competitor model.Competitor) (model.CompetitorReport, error) {
	sources, err := f.sources.SourcesByCompetitor(ctx, competitor.ID)
	if err != nil {
		return model.CompetitorReport{}, fmt.Errorf("list sources of %s: %w", competitor.Name, err)
	}

	var (
		report = model.CompetitorReport{TotalSources: len(sources)}
		mu     sync.Mutex
		g      errgroup.Group
	)
	g.SetLimit(f.concurrency)

	for _, src := range sources {
		src := src
		g.Go(func() error {
			tally, err := f.ingestSourceSafe(ctx, src)

			mu.Lock()
			defer mu.Unlock()

			report.NewArticles += tally.New
			report.Duplicates += tally.Duplicates
			report.Filtered += tally.Filtered
			if err != nil {
				log.Printf("[ERROR] %s: source %s: %v", competitor.Name, src.URL, err)
				report.Errors++
			}

			return nil
		})
	}

	_ = g.Wait()

	return report, nil
}

// Паника в одном источнике не должна ронять весь обход
func (f *Fetcher) ingestSourceSafe(ctx context.Context, src model.Source) (tally SourceTally, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[ERROR] panic recovered while ingesting %s: %v\n%s", src.URL, p, string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	return f.IngestSource(ctx, src)
}

// IngestSet обходит всех конкурентов набора и собирает общий отчет
func (f *Fetcher) IngestSet(ctx context.Context, setName string) (model.SetReport, error) {
	start := time.Now()

	report := model.SetReport{
		RunID:         uuid.NewString(),
		SetName:       setName,
		PerCompetitor: make(map[string]model.CompetitorReport),
	}

	competitors, err := f.competitors.CompetitorsBySet(ctx, setName)
	if err != nil {
		return report, fmt.Errorf("list competitors of %s: %w", setName, err)
	}
	report.Competitors = len(competitors)

	log.Printf("[INFO] run %s: ingesting set %q (%d competitors)", report.RunID, setName, len(competitors))

	for _, competitor := range competitors {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		sub, err := f.IngestCompetitor(ctx, competitor)
		if err != nil {
			log.Printf("[ERROR] run %s: %v", report.RunID, err)
			sub.Errors++
		}

		report.PerCompetitor[competitor.Name] = sub
		report.NewArticles += sub.NewArticles
		report.Duplicates += sub.Duplicates
		report.Filtered += sub.Filtered
		report.Errors += sub.Errors
	}

	report.ElapsedSeconds = model.Seconds(time.Since(start))

	log.Printf(
		"[INFO] run %s: set %q done in %.2fs: new=%d duplicates=%d filtered=%d errors=%d",
		report.RunID, setName, report.ElapsedSeconds, report.NewArticles, report.Duplicates, report.Filtered, report.Errors,
	)

	return report, nil
}

// IngestAll обходит все наборы по очереди
func (f *Fetcher) IngestAll(ctx context.Context) ([]model.SetReport, error) {
	names, err := f.competitors.SetNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}

	reports := make([]model.SetReport, 0, len(names))
	for _, name := range names {
		report, err := f.IngestSet(ctx, name)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// Смотрим на категории статьи и на заголовок.
// Если там есть хоть одно ключевое слово из фильтра, статью пропускаем.
func (f *Fetcher) itemShouldBeSkipped(item model.Item) bool {
	if len(f.filterKeywords) == 0 {
		return false
	}

	categoriesSet := set.New(lo.Map(item.Categories, func(c string, _ int) string {
		return strings.ToLower(c)
	})...)
	title := strings.ToLower(item.Title)

	for _, keyword := range f.filterKeywords {
		if keyword == "" {
			continue
		}
		if categoriesSet.Contains(keyword) || strings.Contains(title, keyword) {
			return true
		}
	}

	return false
}
