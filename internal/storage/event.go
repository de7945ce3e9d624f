package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type EventPostgresStorage struct {
	db *sqlx.DB
}

func NewEventStorage(db *sqlx.DB) *EventPostgresStorage {
	return &EventPostgresStorage{db: db}
}

// Add сохраняет событие как есть, валидация на стороне классификатора
func (s *EventPostgresStorage) Add(ctx context.Context, event model.Event) (int64, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	entities := event.Entities
	if entities == nil {
		entities = []string{}
	}

	var id int64
	if err := conn.GetContext(
		ctx,
		&id,
		`INSERT INTO events (article_id, category, summary, confidence, entities, impact_level)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		event.ArticleID,
		string(event.Category),
		event.Summary,
		event.Confidence,
		pq.StringArray(entities),
		string(event.ImpactLevel),
	); err != nil {
		return 0, fmt.Errorf("insert event for article %d: %w", event.ArticleID, err)
	}

	return id, nil
}

// ByArticle возвращает события статьи, по нему проверяем что статья уже классифицирована
func (s *EventPostgresStorage) ByArticle(ctx context.Context, articleID int64) ([]model.Event, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var events []dbEvent
	if err := conn.SelectContext(
		ctx,
		&events,
		`SELECT id, article_id, category, summary, confidence, entities, impact_level, created_at
		FROM events WHERE article_id = $1 ORDER BY id`,
		articleID,
	); err != nil {
		return nil, err
	}

	return lo.Map(events, func(e dbEvent, _ int) model.Event {
		return e.toModel()
	}), nil
}

// BySet возвращает события набора с контекстом статьи и конкурента, самые новые первыми
func (s *EventPostgresStorage) BySet(ctx context.Context, setName string, limit uint64) ([]model.EventWithContext, error) {
	q := eventsQuery().
		Where(sq.Eq{"c.set_name": setName}).
		OrderBy("e.created_at DESC", "e.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	return s.selectEvents(ctx, q)
}

// Since возвращает события, созданные после since, для рассылки.
// Самые старые первыми, чтобы при limit остаток достался следующей выборке.
func (s *EventPostgresStorage) Since(ctx context.Context, since time.Time, limit uint64) ([]model.EventWithContext, error) {
	q := eventsQuery().
		Where(sq.Gt{"e.created_at": since.UTC()}).
		OrderBy("e.created_at ASC", "e.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	return s.selectEvents(ctx, q)
}

// StatsBySet считает события набора всего и по категориям
func (s *EventPostgresStorage) StatsBySet(ctx context.Context, setName string) (model.EventStats, error) {
	query, args, err := psql.
		Select("e.category", "COUNT(*) AS count").
		From("events e").
		Join("articles a ON a.id = e.article_id").
		Join("sources s ON s.id = a.source_id").
		Join("competitors c ON c.id = s.competitor_id").
		Where(sq.Eq{"c.set_name": setName}).
		GroupBy("e.category").
		ToSql()
	if err != nil {
		return model.EventStats{}, err
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return model.EventStats{}, err
	}
	defer conn.Close()

	var rows []struct {
		Category string `db:"category"`
		Count    int    `db:"count"`
	}
	if err := conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return model.EventStats{}, err
	}

	stats := model.EventStats{ByCategory: make(map[model.Category]int, len(rows))}
	for _, row := range rows {
		stats.ByCategory[model.Category(row.Category)] = row.Count
		stats.Total += row.Count
	}

	return stats, nil
}

func eventsQuery() sq.SelectBuilder {
	return psql.
		Select(
			"e.id", "e.article_id", "e.category", "e.summary", "e.confidence", "e.entities", "e.impact_level", "e.created_at",
			"a.title", "a.url", "a.publish_date", "c.name AS competitor_name", "c.set_name",
		).
		From("events e").
		Join("articles a ON a.id = e.article_id").
		Join("sources s ON s.id = a.source_id").
		Join("competitors c ON c.id = s.competitor_id")
}

func (s *EventPostgresStorage) selectEvents(ctx context.Context, q sq.SelectBuilder) ([]model.EventWithContext, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var events []dbEventWithContext
	if err := conn.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}

	return lo.Map(events, func(e dbEventWithContext, _ int) model.EventWithContext {
		return model.EventWithContext{
			Event:          e.dbEvent.toModel(),
			ArticleTitle:   e.Title,
			ArticleURL:     e.URL,
			PublishDate:    nullTime(e.PublishDate),
			CompetitorName: e.CompetitorName,
			SetName:        e.SetName,
		}
	}), nil
}

type dbEvent struct {
	ID          int64          `db:"id"`
	ArticleID   int64          `db:"article_id"`
	Category    string         `db:"category"`
	Summary     string         `db:"summary"`
	Confidence  float64        `db:"confidence"`
	Entities    pq.StringArray `db:"entities"`
	ImpactLevel string         `db:"impact_level"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (e dbEvent) toModel() model.Event {
	return model.Event{
		ID:          e.ID,
		ArticleID:   e.ArticleID,
		Category:    model.Category(e.Category),
		Summary:     e.Summary,
		Confidence:  e.Confidence,
		Entities:    []string(e.Entities),
		ImpactLevel: model.ImpactLevel(e.ImpactLevel),
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

type dbEventWithContext struct {
	dbEvent
	Title          string       `db:"title"`
	URL            string       `db:"url"`
	PublishDate    sql.NullTime `db:"publish_date"`
	CompetitorName string       `db:"competitor_name"`
	SetName        string       `db:"set_name"`
}
