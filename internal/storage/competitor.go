package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type CompetitorPostgresStorage struct {
	db *sqlx.DB
}

func NewCompetitorPostgresStorage(db *sqlx.DB) *CompetitorPostgresStorage {
	return &CompetitorPostgresStorage{db: db}
}

// Register добавляет конкурента. Если имя уже занято, возвращает id существующего.
func (s *CompetitorPostgresStorage) Register(ctx context.Context, name, setName string) (int64, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var id int64
	err = conn.GetContext(
		ctx,
		&id,
		`INSERT INTO competitors (name, set_name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING RETURNING id`,
		name,
		setName,
	)
	// При конфликте RETURNING ничего не отдает, поэтому достаем id отдельно
	if errors.Is(err, sql.ErrNoRows) {
		if err := conn.GetContext(ctx, &id, `SELECT id FROM competitors WHERE name = $1`, name); err != nil {
			return 0, fmt.Errorf("get competitor %q: %w", name, err)
		}
		return id, nil
	}
	if err != nil {
		return 0, fmt.Errorf("insert competitor %q: %w", name, err)
	}

	return id, nil
}

// CompetitorsBySet возвращает активных конкурентов набора в порядке добавления
func (s *CompetitorPostgresStorage) CompetitorsBySet(ctx context.Context, setName string) ([]model.Competitor, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var competitors []dbCompetitor
	if err := conn.SelectContext(
		ctx,
		&competitors,
		`SELECT id, name, set_name, active, created_at FROM competitors
		WHERE set_name = $1 AND active ORDER BY id`,
		setName,
	); err != nil {
		return nil, err
	}

	return lo.Map(competitors, func(c dbCompetitor, _ int) model.Competitor {
		return model.Competitor(c)
	}), nil
}

// SetNames возвращает имена всех наборов, в которых есть конкуренты
func (s *CompetitorPostgresStorage) SetNames(ctx context.Context) ([]string, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var names []string
	if err := conn.SelectContext(
		ctx,
		&names,
		`SELECT set_name FROM competitors GROUP BY set_name ORDER BY MIN(id)`,
	); err != nil {
		return nil, err
	}

	return names, nil
}

type dbCompetitor struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	SetName   string    `db:"set_name"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}
