package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type ArticlePostgresStorage struct {
	db *sqlx.DB
}

func NewArticleStorage(db *sqlx.DB) *ArticlePostgresStorage {
	return &ArticlePostgresStorage{db: db}
}

// Store сохраняет статью. Хэш контента считается здесь же.
// Если статья с таким хэшем уже есть, возвращает (0, false, nil): дубль это не ошибка.
func (s *ArticlePostgresStorage) Store(ctx context.Context, article model.Article) (int64, bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	var publishDate sql.NullTime
	if article.PublishDate != nil {
		publishDate = sql.NullTime{Time: article.PublishDate.UTC(), Valid: true}
	}

	var id int64
	err = conn.GetContext(
		ctx,
		&id,
		`INSERT INTO articles (source_id, title, content, publish_date, url, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_hash) DO NOTHING RETURNING id`,
		article.SourceID,
		article.Title,
		article.Content,
		publishDate,
		article.URL,
		model.ContentHash(article.Content),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert article %q: %w", article.Title, err)
	}

	return id, true, nil
}

// Unclassified возвращает статьи без событий, самые свежие первыми.
// Пустой setName означает все наборы.
func (s *ArticlePostgresStorage) Unclassified(ctx context.Context, setName string, limit uint64) ([]model.Article, error) {
	q := articlesQuery().
		Where("NOT EXISTS (SELECT 1 FROM events e WHERE e.article_id = a.id)").
		OrderBy("a.fetched_at DESC", "a.id DESC")
	if setName != "" {
		q = q.Where(sq.Eq{"c.set_name": setName})
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	return s.selectArticles(ctx, query, args...)
}

// CountUnclassified считает статьи набора, по которым еще нет событий
func (s *ArticlePostgresStorage) CountUnclassified(ctx context.Context, setName string) (int, error) {
	query, args, err := psql.
		Select("COUNT(*)").
		From("articles a").
		Join("sources s ON s.id = a.source_id").
		Join("competitors c ON c.id = s.competitor_id").
		Where(sq.Eq{"c.set_name": setName}).
		Where("NOT EXISTS (SELECT 1 FROM events e WHERE e.article_id = a.id)").
		ToSql()
	if err != nil {
		return 0, err
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int
	if err := conn.GetContext(ctx, &count, query, args...); err != nil {
		return 0, err
	}

	return count, nil
}

// ArticlesByCompetitor возвращает статьи конкурента, самые свежие первыми
func (s *ArticlePostgresStorage) ArticlesByCompetitor(ctx context.Context, competitorID int64, limit uint64) ([]model.Article, error) {
	q := articlesQuery().
		Where(sq.Eq{"c.id": competitorID}).
		OrderBy("a.fetched_at DESC", "a.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	return s.selectArticles(ctx, query, args...)
}

func articlesQuery() sq.SelectBuilder {
	return psql.
		Select(
			"a.id", "a.source_id", "a.title", "a.content", "a.url", "a.publish_date", "a.content_hash", "a.fetched_at",
			"s.url AS source_url", "c.name AS competitor_name",
		).
		From("articles a").
		Join("sources s ON s.id = a.source_id").
		Join("competitors c ON c.id = s.competitor_id")
}

func (s *ArticlePostgresStorage) selectArticles(ctx context.Context, query string, args ...any) ([]model.Article, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var articles []dbArticle
	if err := conn.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, err
	}

	return lo.Map(articles, func(a dbArticle, _ int) model.Article {
		return model.Article{
			ID:             a.ID,
			SourceID:       a.SourceID,
			Title:          a.Title,
			Content:        a.Content,
			URL:            a.URL,
			PublishDate:    nullTime(a.PublishDate),
			ContentHash:    a.ContentHash,
			FetchedAt:      a.FetchedAt.UTC(),
			SourceURL:      a.SourceURL,
			CompetitorName: a.CompetitorName,
		}
	}), nil
}

type dbArticle struct {
	ID             int64        `db:"id"`
	SourceID       int64        `db:"source_id"`
	Title          string       `db:"title"`
	Content        string       `db:"content"`
	URL            string       `db:"url"`
	PublishDate    sql.NullTime `db:"publish_date"`
	ContentHash    string       `db:"content_hash"`
	FetchedAt      time.Time    `db:"fetched_at"`
	SourceURL      string       `db:"source_url"`
	CompetitorName string       `db:"competitor_name"`
}
