package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/tomakado/containers/set"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
	"github.com/kovalyov-valentin/competitor-scout/internal/ratelimit"
)

// ErrInvalidResponse - модель ответила, но ответ не подходит под ожидаемую форму
var ErrInvalidResponse = errors.New("invalid model response")

// Completer - языковая модель: system+user сообщения на вход, строгий JSON на выход
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type EventStorage interface {
	Add(ctx context.Context, event model.Event) (int64, error)
	ByArticle(ctx context.Context, articleID int64) ([]model.Event, error)
}

// Ответ модели после проверки
type Classification struct {
	Category    model.Category    `json:"category"`
	Summary     string            `json:"summary"`
	Confidence  float64           `json:"confidence"`
	Entities    []string          `json:"entities"`
	ImpactLevel model.ImpactLevel `json:"impact_level"`
}

// Чем закончилась классификация одной статьи
type Outcome int

const (
	// Прошла все проверки, но еще не сохранена
	OutcomeAccepted Outcome = iota
	OutcomePersisted
	OutcomeLowConfidence
	OutcomeOther
	OutcomeInvalid
	OutcomeFailed
	OutcomeSaveFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomePersisted:
		return "persisted"
	case OutcomeLowConfidence:
		return "low_confidence"
	case OutcomeOther:
		return "other"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeFailed:
		return "failed"
	case OutcomeSaveFailed:
		return "save_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result - итог по одной статье. Classification заполнен, если ответ модели прошел валидацию.
type Result struct {
	Outcome        Outcome
	Classification *Classification
	EventID        int64
	// Ответ взят из кэша, модель не вызывалась
	Cached bool
	Err    error
}

// Classifier превращает одну статью в не больше чем одно событие
type Classifier struct {
	completer Completer
	events    EventStorage
	// Общий лимит запросов к модели
	limiter *ratelimit.Window

	systemPrompt string
	categories   []model.Category
	threshold    float64

	// Кэш ответов по хэшу контента, живет пока живет процесс
	mu    sync.Mutex
	cache map[string]Classification
}

func New(
	completer Completer,
	events EventStorage,
	limiter *ratelimit.Window,
	taxonomy []model.CategoryDefinition,
	threshold float64,
) *Classifier {
	categories := lo.Map(taxonomy, func(c model.CategoryDefinition, _ int) model.Category {
		return c.Name
	})

	return &Classifier{
		completer:    completer,
		events:       events,
		limiter:      limiter,
		systemPrompt: SystemPrompt(taxonomy),
		categories:   categories,
		threshold:    threshold,
		cache:        make(map[string]Classification),
	}
}

// Classify спрашивает модель про статью и применяет пороги. В БД ничего не пишет.
// Проверенные ответы кэшируются по хэшу контента вместе с отбракованными,
// пороги применяются заново при каждом чтении из кэша.
func (c *Classifier) Classify(ctx context.Context, article model.Article) Result {
	key := article.ContentHash
	if key == "" {
		key = model.ContentHash(article.Content)
	}

	if cached, ok := c.cached(key); ok {
		result := c.gate(cached)
		result.Cached = true
		return result
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{Outcome: OutcomeFailed, Err: err}
		}
	}

	raw, err := c.completer.Complete(ctx, c.systemPrompt, UserPrompt(article))
	if err != nil {
		log.Printf("[ERROR] classify article %d: %v", article.ID, err)
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	classification, err := c.parse(raw)
	if err != nil {
		log.Printf("[ERROR] classify article %d: %v", article.ID, err)
		return Result{Outcome: OutcomeInvalid, Err: err}
	}

	c.mu.Lock()
	c.cache[key] = classification
	c.mu.Unlock()

	return c.gate(classification)
}

// ClassifyAndPersist классифицирует статью и сохраняет событие, если оно прошло пороги
func (c *Classifier) ClassifyAndPersist(ctx context.Context, article model.Article) Result {
	result := c.Classify(ctx, article)
	if result.Outcome != OutcomeAccepted {
		return result
	}

	cl := result.Classification
	id, err := c.events.Add(ctx, model.Event{
		ArticleID:   article.ID,
		Category:    cl.Category,
		Summary:     cl.Summary,
		Confidence:  cl.Confidence,
		Entities:    cl.Entities,
		ImpactLevel: cl.ImpactLevel,
	})
	if err != nil {
		log.Printf("[ERROR] save event for article %d: %v", article.ID, err)
		result.Outcome = OutcomeSaveFailed
		result.Err = err
		return result
	}

	result.Outcome = OutcomePersisted
	result.EventID = id

	return result
}

func (c *Classifier) cached(key string) (Classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.cache[key]
	return cl, ok
}

// Сначала порог уверенности, потом категория other. Равное порогу значение проходит.
func (c *Classifier) gate(cl Classification) Result {
	result := Result{Classification: &cl}

	switch {
	case cl.Confidence < c.threshold:
		result.Outcome = OutcomeLowConfidence
	case cl.Category == model.CategoryOther:
		result.Outcome = OutcomeOther
	default:
		result.Outcome = OutcomeAccepted
	}

	return result
}

// parse проверяет ответ модели. Все пять полей обязательны.
func (c *Classifier) parse(raw string) (Classification, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	for _, name := range []string{"category", "summary", "confidence", "entities", "impact_level"} {
		if _, ok := fields[name]; !ok {
			return Classification{}, fmt.Errorf("%w: missing field %q", ErrInvalidResponse, name)
		}
	}

	var (
		cl       Classification
		category string
		impact   string
	)

	if err := json.Unmarshal(fields["category"], &category); err != nil {
		return Classification{}, fmt.Errorf("%w: category: %v", ErrInvalidResponse, err)
	}
	cl.Category = model.Category(strings.ToLower(strings.TrimSpace(category)))
	if !set.New(c.categories...).Contains(cl.Category) {
		return Classification{}, fmt.Errorf("%w: unknown category %q", ErrInvalidResponse, category)
	}

	if err := json.Unmarshal(fields["summary"], &cl.Summary); err != nil {
		return Classification{}, fmt.Errorf("%w: summary: %v", ErrInvalidResponse, err)
	}

	confidence, err := parseConfidence(fields["confidence"])
	if err != nil {
		return Classification{}, err
	}
	cl.Confidence = confidence

	if err := json.Unmarshal(fields["entities"], &cl.Entities); err != nil {
		return Classification{}, fmt.Errorf("%w: entities: %v", ErrInvalidResponse, err)
	}
	if cl.Entities == nil {
		cl.Entities = []string{}
	}

	if err := json.Unmarshal(fields["impact_level"], &impact); err != nil {
		return Classification{}, fmt.Errorf("%w: impact_level: %v", ErrInvalidResponse, err)
	}
	cl.ImpactLevel = model.ImpactLevel(strings.ToLower(strings.TrimSpace(impact)))
	if cl.ImpactLevel.Rank() == 0 {
		cl.ImpactLevel = model.ImpactMedium
	}

	return cl, nil
}

// Модель иногда присылает уверенность строкой, такие значения приводим к числу
func parseConfidence(raw json.RawMessage) (float64, error) {
	if strings.TrimSpace(string(raw)) == "null" {
		return 0, fmt.Errorf("%w: confidence is null", ErrInvalidResponse)
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: confidence is neither a number nor a string", ErrInvalidResponse)
		}

		value, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: confidence %q is not a number", ErrInvalidResponse, s)
		}
	}

	if math.IsNaN(value) || math.IsInf(value, 0) || !(value >= 0 && value <= 1) {
		return 0, fmt.Errorf("%w: confidence %v is out of range", ErrInvalidResponse, value)
	}

	return value, nil
}
