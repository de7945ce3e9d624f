package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

// Roster - статичный реестр: наборы конкурентов, их источники и таксономия категорий
type Roster struct {
	Sets       []SetConfig      `yaml:"sets"`
	Categories []CategoryConfig `yaml:"categories"`
}

type SetConfig struct {
	Name        string             `yaml:"name"`
	Competitors []CompetitorConfig `yaml:"competitors"`
}

type CompetitorConfig struct {
	Name    string         `yaml:"name"`
	Sources []SourceConfig `yaml:"sources"`
}

type SourceConfig struct {
	URL  string `yaml:"url"`
	Kind string `yaml:"kind"`
}

type CategoryConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Examples    []string `yaml:"examples"`
}

// LoadRoster читает реестр из yaml. Если файла нет, берем встроенный.
func LoadRoster(path string) (Roster, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("[INFO] roster %s not found, using built-in roster", path)
		return DefaultRoster(), nil
	}
	if err != nil {
		return Roster{}, fmt.Errorf("read roster %s: %w", path, err)
	}

	return ParseRoster(raw)
}

func ParseRoster(raw []byte) (Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Roster{}, fmt.Errorf("parse roster: %w", err)
	}

	if len(r.Categories) == 0 {
		r.Categories = DefaultRoster().Categories
	}

	// На other классификатор отправляет все нестратегическое, без нее такие ответы стали бы ошибками
	hasOther := lo.ContainsBy(r.Categories, func(c CategoryConfig) bool {
		return c.Name == string(model.CategoryOther)
	})
	if !hasOther {
		r.Categories = append(r.Categories, defaultOtherCategory())
	}

	if err := r.validate(); err != nil {
		return Roster{}, err
	}

	return r, nil
}

func (r Roster) validate() error {
	seen := make(map[string]string)
	for _, set := range r.Sets {
		if set.Name == "" {
			return errors.New("roster: set without name")
		}
		for _, c := range set.Competitors {
			if c.Name == "" {
				return fmt.Errorf("roster: competitor without name in set %q", set.Name)
			}
			// Конкурент может состоять только в одном наборе
			if other, ok := seen[c.Name]; ok && other != set.Name {
				return fmt.Errorf("roster: competitor %q is listed in sets %q and %q", c.Name, other, set.Name)
			}
			seen[c.Name] = set.Name

			for _, src := range c.Sources {
				kind := model.SourceKind(src.Kind)
				if kind != model.SourceKindRSS && kind != model.SourceKindHTML {
					log.Printf("[WARN] roster: source %s of %s has unknown kind %q", src.URL, c.Name, src.Kind)
				}
			}
		}
	}

	return nil
}

// SetNames возвращает имена наборов в порядке из файла
func (r Roster) SetNames() []string {
	return lo.Map(r.Sets, func(s SetConfig, _ int) string {
		return s.Name
	})
}

// Taxonomy переводит категории в модель для промпта
func (r Roster) Taxonomy() []model.CategoryDefinition {
	return lo.Map(r.Categories, func(c CategoryConfig, _ int) model.CategoryDefinition {
		return model.CategoryDefinition{
			Name:        model.Category(c.Name),
			Description: c.Description,
			Examples:    c.Examples,
		}
	})
}

// DefaultRoster - реестр по умолчанию, ссылки актуальны на октябрь 2025
func DefaultRoster() Roster {
	return Roster{
		Sets: []SetConfig{
			{
				Name: "SaaS Analytics",
				Competitors: []CompetitorConfig{
					{Name: "Mixpanel", Sources: []SourceConfig{{URL: "https://mixpanel.com/blog/", Kind: "html"}}},
					{Name: "Amplitude", Sources: []SourceConfig{{URL: "https://amplitude.com/blog", Kind: "html"}}},
					{Name: "Heap", Sources: []SourceConfig{{URL: "https://www.heap.io/blog", Kind: "html"}}},
				},
			},
		},
		Categories: []CategoryConfig{
			{
				Name:        string(model.CategoryFeatureLaunch),
				Description: "New product features, capabilities, tools, or major functionality additions",
				Examples:    []string{"AI-powered analytics dashboard", "Mobile app update", "API v2.0 release"},
			},
			{
				Name:        string(model.CategoryPricingChange),
				Description: "Pricing updates, new tiers, packaging changes, or promotional offers",
				Examples:    []string{"20% discount", "Enterprise plan now available", "Free tier expansion"},
			},
			{
				Name:        string(model.CategoryPartnership),
				Description: "Collaborations, integrations, acquisitions, or strategic alliances",
				Examples:    []string{"Slack integration", "Acquired by BigCorp", "Partnership with Microsoft"},
			},
			defaultOtherCategory(),
		},
	}
}

func defaultOtherCategory() CategoryConfig {
	return CategoryConfig{
		Name:        string(model.CategoryOther),
		Description: "General announcements, blog posts, events, hiring, or non-strategic updates",
		Examples:    []string{"Company culture post", "Industry trends article", "Conference attendance"},
	}
}

// DefaultUserAgents - браузерные UA, которые ротируем между запросами
func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
	}
}
