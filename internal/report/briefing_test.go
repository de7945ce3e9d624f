package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

func TestWritePDF(t *testing.T) {
	t.Parallel()

	published := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	b := Briefing{
		SetName:     "SaaS Analytics",
		GeneratedAt: time.Date(2025, 3, 6, 12, 0, 0, 0, time.UTC),
		Stats: model.EventStats{
			Total:      2,
			ByCategory: map[model.Category]int{model.CategoryFeatureLaunch: 1, model.CategoryPricingChange: 1},
		},
		Unclassified: 3,
		Events: []model.EventWithContext{
			{
				Event: model.Event{
					Category:    model.CategoryFeatureLaunch,
					Summary:     "Mixpanel shipped a naïve-Bayes “smart” funnel view.",
					Confidence:  0.92,
					Entities:    []string{"Mixpanel", "Funnels"},
					ImpactLevel: model.ImpactHigh,
				},
				ArticleTitle:   "Introducing smart funnels",
				ArticleURL:     "https://mixpanel.com/blog/smart-funnels",
				PublishDate:    &published,
				CompetitorName: "Mixpanel",
			},
			{
				Event: model.Event{
					Category:    model.CategoryPricingChange,
					Summary:     "Heap added a free tier.",
					Confidence:  0.8,
					ImpactLevel: "unknown",
				},
				ArticleTitle:   "Heap pricing update",
				ArticleURL:     "https://www.heap.io/blog/pricing",
				CompetitorName: "Heap",
			},
		},
	}

	var buf bytes.Buffer
	if err := WritePDF(&buf, b); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}

	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a pdf")
	}
}

func TestWritePDFEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WritePDF(&buf, Briefing{SetName: "Empty", GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a document")
	}
}

func TestCategoryTitle(t *testing.T) {
	t.Parallel()

	if got := categoryTitle(model.CategoryFeatureLaunch); got != "Feature Launch" {
		t.Fatalf("unexpected title %q", got)
	}
}
