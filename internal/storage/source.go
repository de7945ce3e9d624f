package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type SourcePostgresStorage struct {
	db *sqlx.DB
}

func NewSourcePostgresStorage(db *sqlx.DB) *SourcePostgresStorage {
	return &SourcePostgresStorage{db: db}
}

// Register добавляет источник конкурента. Урл уникален, повторная регистрация вернет id существующего источника.
func (s *SourcePostgresStorage) Register(ctx context.Context, competitorID int64, url string, kind model.SourceKind) (int64, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var id int64
	err = conn.GetContext(
		ctx,
		&id,
		`INSERT INTO sources (competitor_id, url, source_type, status) VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING RETURNING id`,
		competitorID,
		url,
		string(kind),
		model.SourceStatusActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if err := conn.GetContext(ctx, &id, `SELECT id FROM sources WHERE url = $1`, url); err != nil {
			return 0, fmt.Errorf("get source %s: %w", url, err)
		}
		return id, nil
	}
	if err != nil {
		return 0, fmt.Errorf("insert source %s: %w", url, err)
	}

	return id, nil
}

// SourcesByCompetitor возвращает активные источники конкурента в порядке добавления
func (s *SourcePostgresStorage) SourcesByCompetitor(ctx context.Context, competitorID int64) ([]model.Source, error) {
	query, args, err := sourcesQuery().
		Where("s.competitor_id = ?", competitorID).
		Where("s.status = ?", model.SourceStatusActive).
		ToSql()
	if err != nil {
		return nil, err
	}

	return s.selectSources(ctx, query, args...)
}

// Sources возвращает все источники вместе с именами конкурентов
func (s *SourcePostgresStorage) Sources(ctx context.Context) ([]model.Source, error) {
	query, args, err := sourcesQuery().ToSql()
	if err != nil {
		return nil, err
	}

	return s.selectSources(ctx, query, args...)
}

// MarkFetched проставляет время последнего обращения к источнику
func (s *SourcePostgresStorage) MarkFetched(ctx context.Context, id int64) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `UPDATE sources SET last_scraped = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark source %d fetched: %w", id, err)
	}

	return nil
}

func sourcesQuery() sq.SelectBuilder {
	return psql.
		Select("s.id", "s.competitor_id", "s.url", "s.source_type", "s.last_scraped", "s.status", "c.name AS competitor_name").
		From("sources s").
		Join("competitors c ON c.id = s.competitor_id").
		OrderBy("s.id")
}

func (s *SourcePostgresStorage) selectSources(ctx context.Context, query string, args ...any) ([]model.Source, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var sources []dbSource
	if err := conn.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, err
	}

	return lo.Map(sources, func(source dbSource, _ int) model.Source {
		return model.Source{
			ID:             source.ID,
			CompetitorID:   source.CompetitorID,
			URL:            source.URL,
			Kind:           model.SourceKind(source.Kind),
			LastScraped:    nullTime(source.LastScraped),
			Status:         source.Status,
			CompetitorName: source.CompetitorName,
		}
	}), nil
}

// Внутренняя модель для работы с БД, чтобы правильно мапить его на колонки в таблице
type dbSource struct {
	ID             int64        `db:"id"`
	CompetitorID   int64        `db:"competitor_id"`
	URL            string       `db:"url"`
	Kind           string       `db:"source_type"`
	LastScraped    sql.NullTime `db:"last_scraped"`
	Status         string       `db:"status"`
	CompetitorName string       `db:"competitor_name"`
}
