package classifier

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

// Сколько символов статьи отдаем модели
const maxPromptContent = 3000

// SystemPrompt собирает системный промпт из таксономии категорий
func SystemPrompt(taxonomy []model.CategoryDefinition) string {
	categories := lo.Map(taxonomy, func(c model.CategoryDefinition, _ int) string {
		return fmt.Sprintf("**%s**: %s\nExamples: %s", c.Name, c.Description, strings.Join(c.Examples, ", "))
	})
	names := lo.Map(taxonomy, func(c model.CategoryDefinition, _ int) string {
		return string(c.Name)
	})

	var b strings.Builder

	b.WriteString("You are a competitive intelligence analyst covering SaaS, design tools and project management software.\n")
	b.WriteString("You read company blog posts and announcements and extract competitive intelligence events from them.\n\n")

	b.WriteString("## Event Categories\n\n")
	b.WriteString(strings.Join(categories, "\n\n"))
	b.WriteString("\n\n")

	b.WriteString(`## Classification Rules

1. Be selective. Only product changes, pricing and partnerships count as competitive intelligence. Tutorials, generic content and thought leadership go to "other".
2. Confidence is a number from 0.0 to 1.0:
   - 0.9-1.0: explicit announcement with clear details
   - 0.7-0.9: strong indicators with some ambiguity
   - 0.5-0.7: indirect mentions or implications
   - below 0.5: uncertain or not relevant, use "other"
3. Entities are the products, features, pricing tiers, partner companies and technologies mentioned.
4. Impact level is "high", "medium" or "low":
   - high: major feature launches, significant pricing changes, strategic acquisitions
   - medium: incremental features, minor pricing adjustments, standard integrations
   - low: bug fixes, UI improvements, general partnerships
5. The summary is 1-2 sentences with the key competitive insight.

## Response Format

Respond with a single JSON object:
{
    "category": "` + strings.Join(names, "|") + `",
    "summary": "Short description of the event (1-2 sentences)",
    "confidence": 0.85,
    "entities": ["Entity1", "Entity2"],
    "impact_level": "high|medium|low"
}

REQUIREMENTS:
- "confidence" MUST be a number between 0.0 and 1.0, not a string
- "entities" MUST be an array of strings
- "category" MUST be one of: ` + strings.Join(names, ", ") + `
- "impact_level" MUST be one of: high, medium, low

If the article has no competitive intelligence, respond with:
{
    "category": "other",
    "summary": "General content or not actionable",
    "confidence": 0.3,
    "entities": [],
    "impact_level": "low"
}
`)

	return b.String()
}

// UserPrompt описывает одну статью для модели
func UserPrompt(article model.Article) string {
	source := article.CompetitorName
	if source == "" {
		source = "Unknown"
	}

	content := []rune(article.Content)
	if len(content) > maxPromptContent {
		content = content[:maxPromptContent]
	}

	return fmt.Sprintf(
		"Analyze this article and extract competitive intelligence:\n\n"+
			"**Title**: %s\n\n"+
			"**Source**: %s\n\n"+
			"**Content**:\n%s\n\n"+
			"**URL**: %s\n\n"+
			"Classify this article according to the system instructions.\n",
		article.Title,
		source,
		string(content),
		article.URL,
	)
}
