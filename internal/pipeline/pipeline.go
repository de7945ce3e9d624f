package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kovalyov-valentin/competitor-scout/internal/config"
	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type CompetitorRegistry interface {
	Register(ctx context.Context, name, setName string) (int64, error)
	SetNames(ctx context.Context) ([]string, error)
}

type SourceRegistry interface {
	Register(ctx context.Context, competitorID int64, url string, kind model.SourceKind) (int64, error)
}

type Ingester interface {
	IngestSet(ctx context.Context, setName string) (model.SetReport, error)
}

type SetClassifier interface {
	ClassifySet(ctx context.Context, setName string, max int) (model.ClassifyReport, error)
}

// Итог полного прогона по одному набору
type RunReport struct {
	Ingest   model.SetReport       `json:"ingest"`
	Classify *model.ClassifyReport `json:"classify,omitempty"`
}

// Pipeline связывает сбор статей и их классификацию
type Pipeline struct {
	competitors CompetitorRegistry
	sources     SourceRegistry
	ingester    Ingester
	// nil, если классификация не настроена
	classifier SetClassifier

	// Как часто запускаем полный прогон в периодическом режиме
	interval time.Duration
}

func New(
	competitors CompetitorRegistry,
	sources SourceRegistry,
	ingester Ingester,
	classifier SetClassifier,
	interval time.Duration,
) *Pipeline {
	return &Pipeline{
		competitors: competitors,
		sources:     sources,
		ingester:    ingester,
		classifier:  classifier,
		interval:    interval,
	}
}

// Seed регистрирует всех конкурентов и источники из реестра. Повторный вызов ничего не дублирует.
func (p *Pipeline) Seed(ctx context.Context, roster config.Roster) error {
	var competitors, sources int

	for _, set := range roster.Sets {
		for _, c := range set.Competitors {
			competitorID, err := p.competitors.Register(ctx, c.Name, set.Name)
			if err != nil {
				return fmt.Errorf("register competitor %s: %w", c.Name, err)
			}
			competitors++

			for _, src := range c.Sources {
				if _, err := p.sources.Register(ctx, competitorID, src.URL, model.SourceKind(src.Kind)); err != nil {
					return fmt.Errorf("register source %s of %s: %w", src.URL, c.Name, err)
				}
				sources++
			}
		}
	}

	log.Printf("[INFO] roster loaded: %d sets, %d competitors, %d sources", len(roster.Sets), competitors, sources)

	return nil
}

// RunSet собирает новые статьи набора и сразу их классифицирует
func (p *Pipeline) RunSet(ctx context.Context, setName string) (RunReport, error) {
	ingest, err := p.ingester.IngestSet(ctx, setName)
	if err != nil {
		return RunReport{Ingest: ingest}, fmt.Errorf("ingest %s: %w", setName, err)
	}

	report := RunReport{Ingest: ingest}
	if p.classifier == nil {
		return report, nil
	}

	classify, err := p.classifier.ClassifySet(ctx, setName, 0)
	if err != nil {
		return report, fmt.Errorf("classify %s: %w", setName, err)
	}
	report.Classify = &classify

	return report, nil
}

// RunAll прогоняет все наборы по очереди. Ошибка одного набора не останавливает остальные.
func (p *Pipeline) RunAll(ctx context.Context) ([]RunReport, error) {
	names, err := p.competitors.SetNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}

	reports := make([]RunReport, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		report, err := p.RunSet(ctx, name)
		if err != nil {
			log.Printf("[ERROR] run of set %q failed: %v", name, err)
			continue
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// Start работает как самостоятельный воркер: сразу делает прогон и дальше повторяет его каждые interval
func (p *Pipeline) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := p.RunAll(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.RunAll(ctx); err != nil {
				return err
			}
		}
	}
}
