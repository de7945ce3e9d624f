package classifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

const nothingToClassify = "No new articles to classify"

type ArticleProvider interface {
	Unclassified(ctx context.Context, setName string, limit uint64) ([]model.Article, error)
}

// Batch прогоняет через классификатор все еще не классифицированные статьи
type Batch struct {
	engine   *Classifier
	articles ArticleProvider
	events   EventStorage
	// Сколько статей набора берем за один прогон
	limit uint64
}

func NewBatch(engine *Classifier, articles ArticleProvider, events EventStorage, limit int) *Batch {
	if limit < 0 {
		limit = 0
	}

	return &Batch{
		engine:   engine,
		articles: articles,
		events:   events,
		limit:    uint64(limit),
	}
}

// ClassifyBatch классифицирует статьи по очереди, max > 0 ограничивает их число.
// Статьи, по которым событие уже есть в БД, пропускаются без обращения к модели.
func (b *Batch) ClassifyBatch(ctx context.Context, articles []model.Article, max int) model.BatchStats {
	start := time.Now()

	if max > 0 && len(articles) > max {
		articles = articles[:max]
	}

	stats := model.BatchStats{
		RunID: uuid.NewString(),
		Total: len(articles),
	}

	log.Printf("[INFO] run %s: classifying %d articles", stats.RunID, stats.Total)

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			log.Printf("[WARN] run %s: stopped: %v", stats.RunID, err)
			break
		}

		existing, err := b.events.ByArticle(ctx, article.ID)
		if err != nil {
			log.Printf("[ERROR] run %s: check events of article %d: %v", stats.RunID, article.ID, err)
			stats.Errors++
			continue
		}
		if len(existing) > 0 {
			stats.AlreadyClassified++
			continue
		}

		result := b.engine.ClassifyAndPersist(ctx, article)
		if result.Cached {
			stats.Cached++
		}

		switch result.Outcome {
		case OutcomePersisted:
			stats.Classified++
		case OutcomeLowConfidence:
			stats.SkippedLowConfidence++
		case OutcomeOther:
			stats.SkippedOther++
		default:
			stats.Errors++
		}
	}

	elapsed := time.Since(start)
	stats.ElapsedSeconds = model.Seconds(elapsed)
	if stats.Total > 0 {
		stats.AvgSecondsPerArticle = model.Seconds(elapsed / time.Duration(stats.Total))
	}

	log.Printf(
		"[INFO] run %s: classified=%d low_confidence=%d other=%d already=%d errors=%d cached=%d in %.2fs",
		stats.RunID, stats.Classified, stats.SkippedLowConfidence, stats.SkippedOther,
		stats.AlreadyClassified, stats.Errors, stats.Cached, stats.ElapsedSeconds,
	)

	return stats
}

// ClassifySet классифицирует новые статьи набора.
// Если классифицировать нечего, возвращает отчет с NothingToDo, а не пустую статистику.
func (b *Batch) ClassifySet(ctx context.Context, setName string, max int) (model.ClassifyReport, error) {
	articles, err := b.articles.Unclassified(ctx, setName, b.limit)
	if err != nil {
		return model.ClassifyReport{}, fmt.Errorf("list unclassified articles of %s: %w", setName, err)
	}

	if len(articles) == 0 {
		log.Printf("[INFO] set %q: nothing to classify", setName)
		return model.ClassifyReport{
			SetName:     setName,
			NothingToDo: true,
			Message:     nothingToClassify,
		}, nil
	}

	stats := b.ClassifyBatch(ctx, articles, max)

	return model.ClassifyReport{
		SetName: setName,
		Stats:   &stats,
	}, nil
}
