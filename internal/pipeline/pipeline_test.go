package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kovalyov-valentin/competitor-scout/internal/classifier"
	"github.com/kovalyov-valentin/competitor-scout/internal/config"
	"github.com/kovalyov-valentin/competitor-scout/internal/fetcher"
	"github.com/kovalyov-valentin/competitor-scout/internal/model"
	"github.com/kovalyov-valentin/competitor-scout/internal/ratelimit"
	"github.com/kovalyov-valentin/competitor-scout/internal/source"
)

// Хранилище в памяти с теми же гарантиями, что и postgres: уникальные имена, урлы и хэши
type memDB struct {
	mu          sync.Mutex
	competitors []model.Competitor
	sources     []model.Source
	articles    []model.Article
	events      []model.Event
}

type memCompetitors struct{ db *memDB }

func (m memCompetitors) Register(_ context.Context, name, setName string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	for _, c := range m.db.competitors {
		if c.Name == name {
			return c.ID, nil
		}
	}
	id := int64(len(m.db.competitors) + 1)
	m.db.competitors = append(m.db.competitors, model.Competitor{ID: id, Name: name, SetName: setName, Active: true})
	return id, nil
}

func (m memCompetitors) SetNames(context.Context) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var names []string
	seen := map[string]bool{}
	for _, c := range m.db.competitors {
		if !seen[c.SetName] {
			seen[c.SetName] = true
			names = append(names, c.SetName)
		}
	}
	return names, nil
}

func (m memCompetitors) CompetitorsBySet(_ context.Context, setName string) ([]model.Competitor, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var out []model.Competitor
	for _, c := range m.db.competitors {
		if c.SetName == setName && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

type memSources struct{ db *memDB }

func (m memSources) Register(_ context.Context, competitorID int64, url string, kind model.SourceKind) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	for _, s := range m.db.sources {
		if s.URL == url {
			return s.ID, nil
		}
	}
	id := int64(len(m.db.sources) + 1)
	m.db.sources = append(m.db.sources, model.Source{ID: id, CompetitorID: competitorID, URL: url, Kind: kind, Status: model.SourceStatusActive})
	return id, nil
}

func (m memSources) SourcesByCompetitor(_ context.Context, competitorID int64) ([]model.Source, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var out []model.Source
	for _, s := range m.db.sources {
		if s.CompetitorID == competitorID && s.Status == model.SourceStatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memSources) MarkFetched(_ context.Context, id int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	now := time.Now().UTC()
	for i := range m.db.sources {
		if m.db.sources[i].ID == id {
			m.db.sources[i].LastScraped = &now
		}
	}
	return nil
}

type memArticles struct{ db *memDB }

func (m memArticles) Store(_ context.Context, a model.Article) (int64, bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	a.ContentHash = model.ContentHash(a.Content)
	for _, existing := range m.db.articles {
		if existing.ContentHash == a.ContentHash {
			return 0, false, nil
		}
	}
	a.ID = int64(len(m.db.articles) + 1)
	a.FetchedAt = time.Now().UTC()
	m.db.articles = append(m.db.articles, a)
	return a.ID, true, nil
}

func (m memArticles) Unclassified(_ context.Context, setName string, limit uint64) ([]model.Article, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	classified := map[int64]bool{}
	for _, e := range m.db.events {
		classified[e.ArticleID] = true
	}

	var out []model.Article
	for i := len(m.db.articles) - 1; i >= 0; i-- {
		a := m.db.articles[i]
		if classified[a.ID] {
			continue
		}
		competitor := m.competitorOf(a.SourceID)
		if setName != "" && competitor.SetName != setName {
			continue
		}
		a.CompetitorName = competitor.Name
		out = append(out, a)
		if limit > 0 && uint64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (m memArticles) competitorOf(sourceID int64) model.Competitor {
	for _, s := range m.db.sources {
		if s.ID != sourceID {
			continue
		}
		for _, c := range m.db.competitors {
			if c.ID == s.CompetitorID {
				return c
			}
		}
	}
	return model.Competitor{}
}

type memEvents struct{ db *memDB }

func (m memEvents) Add(_ context.Context, e model.Event) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	e.ID = int64(len(m.db.events) + 1)
	e.CreatedAt = time.Now().UTC()
	m.db.events = append(m.db.events, e)
	return e.ID, nil
}

func (m memEvents) ByArticle(_ context.Context, articleID int64) ([]model.Event, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var out []model.Event
	for _, e := range m.db.events {
		if e.ArticleID == articleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m memEvents) StatsBySet(_ context.Context, setName string) (model.EventStats, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	stats := model.EventStats{ByCategory: map[model.Category]int{}}
	articles := memArticles{db: m.db}
	for _, e := range m.db.events {
		for _, a := range m.db.articles {
			if a.ID == e.ArticleID && articles.competitorOf(a.SourceID).SetName == setName {
				stats.Total++
				stats.ByCategory[e.Category]++
			}
		}
	}
	return stats, nil
}

// Модель, которая считает фичей все, где в заголовке есть "launches"
type launchCompleter struct{}

func (launchCompleter) Complete(_ context.Context, _, user string) (string, error) {
	if strings.Contains(user, "launches") {
		return `{"category":"feature_launch","summary":"Acme released an AI-powered analytics dashboard.","confidence":0.92,"entities":["Acme","AI dashboard"],"impact_level":"high"}`, nil
	}
	return `{"category":"other","summary":"General content or not actionable","confidence":0.3,"entities":[],"impact_level":"low"}`, nil
}

const acmePage = `<!DOCTYPE html>
<html>
<head><title>Acme launches AI dashboard</title></head>
<body>
<article>
<h1>Acme launches AI dashboard</h1>
<p>%[1]s</p>
<p>%[1]s</p>
<p>%[1]s</p>
</article>
</body>
</html>`

type testEnv struct {
	db       *memDB
	events   memEvents
	pipeline *Pipeline
	roster   config.Roster
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	paragraph := strings.Repeat("Today Acme ships an AI-powered analytics dashboard that answers product questions in plain English. ", 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, acmePage, paragraph)
	}))
	t.Cleanup(srv.Close)

	var (
		db          = &memDB{}
		competitors = memCompetitors{db: db}
		sources     = memSources{db: db}
		articles    = memArticles{db: db}
		events      = memEvents{db: db}
	)

	loader := source.NewLoader(5*time.Second, 0, nil, 100, 20)
	ingester := fetcher.NewFetcher(articles, sources, competitors, loader, ratelimit.NewDomainLimiter(10*time.Millisecond), 1, nil)
	engine := classifier.New(launchCompleter{}, events, ratelimit.NewWindow(3, time.Second), config.DefaultRoster().Taxonomy(), 0.1)
	batch := classifier.NewBatch(engine, articles, events, 100)

	roster := config.Roster{
		Sets: []config.SetConfig{
			{
				Name: "Tools",
				Competitors: []config.CompetitorConfig{
					{Name: "Acme", Sources: []config.SourceConfig{{URL: srv.URL + "/blog/ai-dashboard", Kind: "html"}}},
				},
			},
		},
	}

	return testEnv{
		db:       db,
		events:   events,
		pipeline: New(competitors, sources, ingester, batch, time.Hour),
		roster:   roster,
	}
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	// Регистрация идемпотентна
	for i := 0; i < 2; i++ {
		if err := env.pipeline.Seed(ctx, env.roster); err != nil {
			t.Fatalf("Seed: %v", err)
		}
	}
	if len(env.db.competitors) != 1 || len(env.db.sources) != 1 {
		t.Fatalf("seed must not duplicate rows: %d competitors, %d sources", len(env.db.competitors), len(env.db.sources))
	}

	report, err := env.pipeline.RunSet(ctx, "Tools")
	if err != nil {
		t.Fatalf("RunSet: %v", err)
	}

	if report.Ingest.NewArticles != 1 || report.Ingest.Errors != 0 {
		t.Fatalf("unexpected ingest report: %+v", report.Ingest)
	}
	if len(env.db.articles) != 1 {
		t.Fatalf("expected 1 article row, got %d", len(env.db.articles))
	}
	if report.Classify == nil || report.Classify.Classified() != 1 {
		t.Fatalf("unexpected classify report: %+v", report.Classify)
	}

	if len(env.db.events) != 1 {
		t.Fatalf("expected 1 event row, got %d", len(env.db.events))
	}
	event := env.db.events[0]
	if event.Category != model.CategoryFeatureLaunch || event.Confidence < 0.1 {
		t.Fatalf("unexpected event: %+v", event)
	}

	stats, err := env.events.StatsBySet(ctx, "Tools")
	if err != nil {
		t.Fatalf("StatsBySet: %v", err)
	}
	if stats.Total != 1 || stats.ByCategory[model.CategoryFeatureLaunch] != 1 || len(stats.ByCategory) != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if env.db.sources[0].LastScraped == nil {
		t.Fatalf("source must be marked fetched")
	}

	// Второй прогон: статья уже есть, классифицировать нечего
	again, err := env.pipeline.RunSet(ctx, "Tools")
	if err != nil {
		t.Fatalf("RunSet again: %v", err)
	}
	if again.Ingest.NewArticles != 0 || again.Ingest.Duplicates != 1 {
		t.Fatalf("expected duplicate on rerun: %+v", again.Ingest)
	}
	if again.Classify == nil || !again.Classify.NothingToDo {
		t.Fatalf("expected nothing to do on rerun: %+v", again.Classify)
	}
	if len(env.db.events) != 1 {
		t.Fatalf("rerun must not add events, got %d", len(env.db.events))
	}
}

func TestRunAllAndStart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	if err := env.pipeline.Seed(context.Background(), env.roster); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	reports, err := env.pipeline.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(reports) != 1 || reports[0].Ingest.SetName != "Tools" {
		t.Fatalf("unexpected reports: %+v", reports)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := env.pipeline.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunSetWithoutClassifier(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	if err := env.pipeline.Seed(context.Background(), env.roster); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	env.pipeline.classifier = nil

	report, err := env.pipeline.RunSet(context.Background(), "Tools")
	if err != nil {
		t.Fatalf("RunSet: %v", err)
	}
	if report.Classify != nil || len(env.db.events) != 0 {
		t.Fatalf("ingest-only run must not classify: %+v", report)
	}
}
