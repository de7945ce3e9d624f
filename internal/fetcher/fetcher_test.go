package fetcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
	"github.com/kovalyov-valentin/competitor-scout/internal/ratelimit"
)

type fakeArticles struct {
	mu     sync.Mutex
	hashes map[string]int64
	failOn string
}

func (f *fakeArticles) Store(_ context.Context, a model.Article) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOn != "" && a.Title == f.failOn {
		return 0, false, errors.New("disk full")
	}
	if f.hashes == nil {
		f.hashes = make(map[string]int64)
	}

	hash := model.ContentHash(a.Content)
	if _, ok := f.hashes[hash]; ok {
		return 0, false, nil
	}
	id := int64(len(f.hashes) + 1)
	f.hashes[hash] = id

	return id, true, nil
}

type fakeSources struct {
	mu      sync.Mutex
	byComp  map[int64][]model.Source
	fetched map[int64]int
}

func (f *fakeSources) SourcesByCompetitor(_ context.Context, id int64) ([]model.Source, error) {
	return f.byComp[id], nil
}

func (f *fakeSources) MarkFetched(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetched == nil {
		f.fetched = make(map[int64]int)
	}
	f.fetched[id]++
	return nil
}

type fakeCompetitors struct {
	bySet map[string][]model.Competitor
}

func (f fakeCompetitors) CompetitorsBySet(_ context.Context, set string) ([]model.Competitor, error) {
	return f.bySet[set], nil
}

func (f fakeCompetitors) SetNames(context.Context) ([]string, error) {
	names := make([]string, 0, len(f.bySet))
	for name := range f.bySet {
		names = append(names, name)
	}
	return names, nil
}

type fakeLoader struct {
	mu    sync.Mutex
	items map[string][]model.Item
	errs  map[string]error
	calls map[string][]time.Time
	panic string
}

func (f *fakeLoader) load(url string) ([]model.Item, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string][]time.Time)
	}
	f.calls[url] = append(f.calls[url], time.Now())
	f.mu.Unlock()

	if url == f.panic {
		panic("boom")
	}
	return f.items[url], f.errs[url]
}

func (f *fakeLoader) FetchFeed(_ context.Context, url string) ([]model.Item, error) {
	return f.load(url)
}

func (f *fakeLoader) FetchPage(_ context.Context, url string) ([]model.Item, error) {
	return f.load(url)
}

func item(title string) model.Item {
	return model.Item{Title: title, Content: strings.Repeat(title+" ", 20), Link: "https://acme.test/" + title}
}

func TestIngestSourceCountsDuplicates(t *testing.T) {
	t.Parallel()

	var (
		articles = &fakeArticles{}
		sources  = &fakeSources{}
		loader   = &fakeLoader{items: map[string][]model.Item{
			"https://acme.test/feed": {item("one"), item("two"), item("one")},
		}}
		f = NewFetcher(articles, sources, fakeCompetitors{}, loader, nil, 1, nil)
	)

	src := model.Source{ID: 7, URL: "https://acme.test/feed", Kind: model.SourceKindRSS}

	tally, err := f.IngestSource(context.Background(), src)
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if tally.New != 2 || tally.Duplicates != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}

	// Повторный прогон ничего нового не добавляет
	tally, err = f.IngestSource(context.Background(), src)
	if err != nil {
		t.Fatalf("IngestSource again: %v", err)
	}
	if tally.New != 0 || tally.Duplicates != 3 {
		t.Fatalf("unexpected tally on rerun: %+v", tally)
	}

	if sources.fetched[7] != 2 {
		t.Fatalf("source must be marked fetched on every attempt, got %d", sources.fetched[7])
	}
}

func TestIngestSourceUnknownKind(t *testing.T) {
	t.Parallel()

	sources := &fakeSources{}
	loader := &fakeLoader{}
	f := NewFetcher(&fakeArticles{}, sources, fakeCompetitors{}, loader, nil, 1, nil)

	tally, err := f.IngestSource(context.Background(), model.Source{ID: 1, URL: "https://x.test", Kind: "pdf"})
	if err != nil {
		t.Fatalf("unknown kind must not fail: %v", err)
	}
	if tally != (SourceTally{}) {
		t.Fatalf("expected empty tally, got %+v", tally)
	}
	if len(loader.calls) != 0 {
		t.Fatalf("loader must not be called for unknown kinds")
	}
}

func TestIngestSourceFilter(t *testing.T) {
	t.Parallel()

	hiring := item("hiring")
	hiring.Title = "We are Hiring engineers"
	tagged := item("tagged")
	tagged.Categories = []string{"Culture"}

	loader := &fakeLoader{items: map[string][]model.Item{
		"https://acme.test/feed": {hiring, tagged, item("launch")},
	}}
	f := NewFetcher(&fakeArticles{}, &fakeSources{}, fakeCompetitors{}, loader, nil, 1, []string{"hiring", " culture "})

	tally, err := f.IngestSource(context.Background(), model.Source{ID: 1, URL: "https://acme.test/feed", Kind: model.SourceKindRSS})
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if tally.New != 1 || tally.Filtered != 2 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
}

func TestIngestSourceKeepsStoringAfterFailure(t *testing.T) {
	t.Parallel()

	var (
		articles = &fakeArticles{failOn: "broken"}
		sources  = &fakeSources{}
		loader   = &fakeLoader{items: map[string][]model.Item{
			"https://acme.test/feed": {item("first"), item("broken"), item("second"), item("third")},
		}}
		f = NewFetcher(articles, sources, fakeCompetitors{}, loader, nil, 1, nil)
	)

	tally, err := f.IngestSource(context.Background(), model.Source{ID: 3, URL: "https://acme.test/feed", Kind: model.SourceKindRSS})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected the store error to be reported, got %v", err)
	}
	if tally.New != 3 {
		t.Fatalf("articles after the failed one must still be stored, got %+v", tally)
	}
	for _, title := range []string{"first", "second", "third"} {
		if _, ok := articles.hashes[model.ContentHash(item(title).Content)]; !ok {
			t.Fatalf("article %q was not stored", title)
		}
	}
	if sources.fetched[3] != 1 {
		t.Fatalf("source must be marked fetched, got %d", sources.fetched[3])
	}
}

func TestIngestSetContinuesAfterFailures(t *testing.T) {
	t.Parallel()

	var (
		articles = &fakeArticles{failOn: "broken"}
		sources  = &fakeSources{byComp: map[int64][]model.Source{
			1: {
				{ID: 10, URL: "https://acme.test/down", Kind: model.SourceKindHTML},
				{ID: 11, URL: "https://acme.test/panic", Kind: model.SourceKindHTML},
				{ID: 12, URL: "https://acme.test/ok", Kind: model.SourceKindHTML},
			},
			2: {
				{ID: 20, URL: "https://globex.test/feed", Kind: model.SourceKindRSS},
				{ID: 21, URL: "https://globex.test/broken", Kind: model.SourceKindRSS},
			},
		}}
		competitors = fakeCompetitors{bySet: map[string][]model.Competitor{
			"Tools": {{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}},
		}}
		loader = &fakeLoader{
			items: map[string][]model.Item{
				"https://acme.test/ok":       {item("acme")},
				"https://globex.test/feed":   {item("globex-a"), item("globex-b")},
				"https://globex.test/broken": {item("broken")},
			},
			errs:  map[string]error{"https://acme.test/down": errors.New("connection refused")},
			panic: "https://acme.test/panic",
		}
		f = NewFetcher(articles, sources, competitors, loader, nil, 2, nil)
	)

	report, err := f.IngestSet(context.Background(), "Tools")
	if err != nil {
		t.Fatalf("IngestSet: %v", err)
	}

	if report.RunID == "" {
		t.Fatalf("expected run id")
	}
	if report.Competitors != 2 || report.NewArticles != 3 || report.Errors != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}

	acme := report.PerCompetitor["Acme"]
	if acme.TotalSources != 3 || acme.NewArticles != 1 || acme.Errors != 2 {
		t.Fatalf("unexpected Acme report: %+v", acme)
	}
	globex := report.PerCompetitor["Globex"]
	if globex.NewArticles != 2 || globex.Errors != 1 {
		t.Fatalf("unexpected Globex report: %+v", globex)
	}

	for _, id := range []int64{10, 11, 12, 20, 21} {
		if sources.fetched[id] != 1 {
			t.Fatalf("source %d must be marked fetched once, got %d", id, sources.fetched[id])
		}
	}
}

func TestIngestCompetitorSharesDomainLimiter(t *testing.T) {
	t.Parallel()

	const delay = 200 * time.Millisecond

	sources := &fakeSources{byComp: map[int64][]model.Source{
		1: {
			{ID: 1, URL: "https://acme.test/a", Kind: model.SourceKindHTML},
			{ID: 2, URL: "https://acme.test/b", Kind: model.SourceKindHTML},
			{ID: 3, URL: "https://other.test/c", Kind: model.SourceKindHTML},
		},
	}}
	loader := &fakeLoader{}
	f := NewFetcher(&fakeArticles{}, sources, fakeCompetitors{}, loader, ratelimit.NewDomainLimiter(delay), 3, nil)

	if _, err := f.IngestCompetitor(context.Background(), model.Competitor{ID: 1, Name: "Acme"}); err != nil {
		t.Fatalf("IngestCompetitor: %v", err)
	}

	a := loader.calls["https://acme.test/a"][0]
	b := loader.calls["https://acme.test/b"][0]
	gap := b.Sub(a)
	if gap < 0 {
		gap = -gap
	}
	if gap < delay-30*time.Millisecond {
		t.Fatalf("requests to the same domain were %v apart, want >= %v", gap, delay)
	}
}
