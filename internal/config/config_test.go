package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("unexpected fetch timeout: %v", cfg.FetchTimeout)
	}
	if cfg.DomainDelay != time.Second {
		t.Fatalf("unexpected domain delay: %v", cfg.DomainDelay)
	}
	if cfg.MinContentLength != 100 || cfg.MaxFeedItems != 20 || cfg.FetchRetries != 3 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg)
	}
	if cfg.LLMRequestsPerSecond != 3 || cfg.OpenAIMaxTokens != 500 {
		t.Fatalf("unexpected llm defaults: %+v", cfg)
	}
	if cfg.ConfidenceThreshold != 0.1 {
		t.Fatalf("unexpected threshold: %v", cfg.ConfidenceThreshold)
	}
	if len(cfg.UserAgents) == 0 {
		t.Fatalf("expected default user agents")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCOUT_DOMAIN_DELAY", "250ms")
	t.Setenv("SCOUT_CONFIDENCE_THRESHOLD", "0.6")
	t.Setenv("SCOUT_OPENAI_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DomainDelay != 250*time.Millisecond {
		t.Fatalf("expected env override of domain delay, got %v", cfg.DomainDelay)
	}
	if cfg.ConfidenceThreshold != 0.6 {
		t.Fatalf("expected env override of threshold, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.OpenAIKey != "sk-test" {
		t.Fatalf("expected OPENAI_API_KEY fallback, got %q", cfg.OpenAIKey)
	}
}

func TestParseRoster(t *testing.T) {
	t.Parallel()

	raw := []byte(`
sets:
  - name: Design Tools
    competitors:
      - name: Figma
        sources:
          - url: https://www.figma.com/blog/feed/
            kind: rss
      - name: Canva
        sources:
          - url: https://www.canva.com/newsroom/news/
            kind: html
`)

	r, err := ParseRoster(raw)
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}

	if names := r.SetNames(); len(names) != 1 || names[0] != "Design Tools" {
		t.Fatalf("unexpected set names: %v", names)
	}
	if got := len(r.Sets[0].Competitors); got != 2 {
		t.Fatalf("expected 2 competitors, got %d", got)
	}
	if r.Sets[0].Competitors[0].Sources[0].Kind != "rss" {
		t.Fatalf("unexpected source kind: %+v", r.Sets[0].Competitors[0].Sources[0])
	}

	// Таксономия не задана в файле, берется встроенная
	if got := len(r.Taxonomy()); got != 4 {
		t.Fatalf("expected default taxonomy with 4 categories, got %d", got)
	}
}

func TestParseRosterAddsOtherCategory(t *testing.T) {
	t.Parallel()

	raw := []byte(`
sets:
  - name: Design Tools
    competitors:
      - name: Figma
categories:
  - name: feature_launch
    description: New features
  - name: security_incident
    description: Breaches and outages
`)

	r, err := ParseRoster(raw)
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}

	taxonomy := r.Taxonomy()
	if len(taxonomy) != 3 || taxonomy[2].Name != model.CategoryOther || taxonomy[2].Description == "" {
		t.Fatalf("expected other to be appended to a custom taxonomy, got %+v", taxonomy)
	}

	// Если other уже есть, второй раз не добавляем
	raw = append(raw, []byte(`  - name: other
    description: Everything else
`)...)
	r, err = ParseRoster(raw)
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	taxonomy = r.Taxonomy()
	if len(taxonomy) != 3 || taxonomy[2].Description != "Everything else" {
		t.Fatalf("existing other must be kept as is, got %+v", taxonomy)
	}
}

func TestParseRosterRejectsCompetitorInTwoSets(t *testing.T) {
	t.Parallel()

	raw := []byte(`
sets:
  - name: A
    competitors:
      - name: Acme
  - name: B
    competitors:
      - name: Acme
`)

	if _, err := ParseRoster(raw); err == nil {
		t.Fatalf("expected error for competitor listed in two sets")
	}
}

func TestLoadRosterFallsBackToDefault(t *testing.T) {
	t.Parallel()

	r, err := LoadRoster(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if len(r.Sets) != 1 || r.Sets[0].Name != "SaaS Analytics" {
		t.Fatalf("expected built-in roster, got %+v", r.Sets)
	}
}

func TestLoadRosterFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte("sets:\n  - name: X\n    competitors:\n      - name: Y\n"), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	r, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if r.Sets[0].Competitors[0].Name != "Y" {
		t.Fatalf("unexpected roster: %+v", r)
	}
}
