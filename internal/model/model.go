package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Тип источника: RSS/Atom лента или отдельная HTML страница
type SourceKind string

const (
	SourceKindRSS  SourceKind = "rss"
	SourceKindHTML SourceKind = "html"
)

const (
	SourceStatusActive   = "active"
	SourceStatusInactive = "inactive"
)

// Категория события
type Category string

const (
	CategoryFeatureLaunch Category = "feature_launch"
	CategoryPricingChange Category = "pricing_change"
	CategoryPartnership   Category = "partnership"
	CategoryOther         Category = "other"
)

// Насколько событие важно для нас как для конкурента
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "high"
	ImpactMedium ImpactLevel = "medium"
	ImpactLow    ImpactLevel = "low"
)

// Rank нужен чтобы сравнивать уровни между собой (low < medium < high)
func (l ImpactLevel) Rank() int {
	switch l {
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	default:
		return 0
	}
}

// Компания, за которой мы следим
type Competitor struct {
	ID   int64
	Name string
	// Набор конкурентов, в который входит компания
	SetName   string
	Active    bool
	CreatedAt time.Time
}

// Модель источника
type Source struct {
	ID           int64
	CompetitorID int64
	// Урл откуда забираем данные
	URL  string
	Kind SourceKind
	// Время последней попытки забрать данные, nil если еще не ходили
	LastScraped *time.Time
	Status      string

	// Заполняется только в выборках с join
	CompetitorName string
}

// Статья как элемент ленты или страницы, еще не сохраненная в БД
type Item struct {
	Title      string
	Content    string
	Link       string
	Categories []string
	// Дата публикации в источнике, nil если ее не удалось распознать
	PublishDate *time.Time
}

// Модель статьи которая используется у нас внутри
type Article struct {
	ID       int64
	SourceID int64
	Title    string
	Content  string
	URL      string
	// Дата публикации в источнике
	PublishDate *time.Time
	// sha256 от контента, по нему дедуплицируем
	ContentHash string
	// Время когда статья была забрана
	FetchedAt time.Time

	// Заполняются только в выборках с join
	SourceURL      string
	CompetitorName string
}

// Классифицированное событие, полученное из одной статьи
type Event struct {
	ID          int64       `json:"id"`
	ArticleID   int64       `json:"article_id"`
	Category    Category    `json:"category"`
	Summary     string      `json:"summary"`
	Confidence  float64     `json:"confidence"`
	Entities    []string    `json:"entities"`
	ImpactLevel ImpactLevel `json:"impact_level"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Событие вместе с контекстом статьи и конкурента, для дашборда и отчетов
type EventWithContext struct {
	Event
	ArticleTitle   string     `json:"title"`
	ArticleURL     string     `json:"url"`
	PublishDate    *time.Time `json:"publish_date"`
	CompetitorName string     `json:"competitor_name"`
	SetName        string     `json:"set_name"`
}

// Агрегаты по событиям набора
type EventStats struct {
	Total      int              `json:"total_events"`
	ByCategory map[Category]int `json:"by_category"`
}

// Описание категории из таксономии, из него собирается промпт
type CategoryDefinition struct {
	Name        Category
	Description string
	Examples    []string
}

// ContentHash считает ключ дедупликации статьи
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
