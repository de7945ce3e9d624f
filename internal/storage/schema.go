package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Все запросы к postgres строим с плейсхолдерами $1, $2...
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const schema = `
CREATE TABLE IF NOT EXISTS competitors (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	set_name   TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sources (
	id            BIGSERIAL PRIMARY KEY,
	competitor_id BIGINT NOT NULL REFERENCES competitors (id),
	url           TEXT NOT NULL UNIQUE,
	source_type   TEXT NOT NULL,
	last_scraped  TIMESTAMPTZ,
	status        TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS articles (
	id           BIGSERIAL PRIMARY KEY,
	source_id    BIGINT NOT NULL REFERENCES sources (id),
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	publish_date TIMESTAMPTZ,
	url          TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS events (
	id           BIGSERIAL PRIMARY KEY,
	article_id   BIGINT NOT NULL REFERENCES articles (id),
	category     TEXT NOT NULL,
	summary      TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	entities     TEXT[] NOT NULL DEFAULT '{}',
	impact_level TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_articles_hash ON articles (content_hash);
CREATE INDEX IF NOT EXISTS idx_events_category ON events (category);
CREATE INDEX IF NOT EXISTS idx_events_article ON events (article_id);
CREATE INDEX IF NOT EXISTS idx_sources_competitor ON sources (competitor_id);
`

const dropSchema = `
DROP TABLE IF EXISTS events;
DROP TABLE IF EXISTS articles;
DROP TABLE IF EXISTS sources;
DROP TABLE IF EXISTS competitors;
`

// Migrate создает таблицы и индексы, если их еще нет
func Migrate(ctx context.Context, db *sqlx.DB) error {
	conn, err := db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

// Reset удаляет все данные и создает схему заново. Только для разработки и тестов.
func Reset(ctx context.Context, db *sqlx.DB) error {
	conn, err := db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, dropSchema); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}

	return Migrate(ctx, db)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
