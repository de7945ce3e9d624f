package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

// Briefing - все, что нужно для отчета по набору конкурентов
type Briefing struct {
	SetName      string
	GeneratedAt  time.Time
	Stats        model.EventStats
	Unclassified int
	// События, самые новые первыми
	Events []model.EventWithContext
}

// Цвет плашки уровня влияния
var impactColors = map[model.ImpactLevel][3]int{
	model.ImpactHigh:   {250, 77, 86},
	model.ImpactMedium: {241, 194, 27},
	model.ImpactLow:    {66, 190, 101},
}

// WritePDF рисует отчет и пишет его в w
func WritePDF(w io.Writer, b Briefing) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Competitive briefing: %s", b.SetName), true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	// Стандартные шрифты fpdf не умеют в utf-8, переводим в cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(15, 98, 254)
	pdf.Cell(0, 10, tr("Competitive Intelligence Briefing"))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Set: %s    Generated: %s", b.SetName, b.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))))
	pdf.Ln(12)

	// Сводка
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, tr("Summary"), "", 1, "", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Total events: %d", b.Stats.Total), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Articles waiting for classification: %d", b.Unclassified), "", 1, "", false, 0, "")

	for _, category := range sortedCategories(b.Stats.ByCategory) {
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("  %s: %d", categoryTitle(category), b.Stats.ByCategory[category])), "", 1, "", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, tr("Events"), "", 1, "", true, 0, "")
	pdf.Ln(2)

	if len(b.Events) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 8, tr("No events yet."))
		pdf.Ln(8)
	}

	for _, e := range b.Events {
		writeEvent(pdf, tr, e)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}

	return nil
}

func writeEvent(pdf *fpdf.Fpdf, tr func(string) string, e model.EventWithContext) {
	color, ok := impactColors[e.ImpactLevel]
	if !ok {
		color = impactColors[model.ImpactMedium]
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 6, tr(e.ArticleTitle), "", "", false)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(color[0], color[1], color[2])
	meta := fmt.Sprintf(
		"%s | %s | impact: %s | confidence: %.2f",
		e.CompetitorName, categoryTitle(e.Category), e.ImpactLevel, e.Confidence,
	)
	if e.PublishDate != nil {
		meta += " | " + e.PublishDate.UTC().Format("2006-01-02")
	}
	pdf.MultiCell(0, 5, tr(meta), "", "", false)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5, tr(e.Summary), "", "", false)

	if len(e.Entities) > 0 {
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, tr("Entities: "+strings.Join(e.Entities, ", ")), "", "", false)
	}

	pdf.SetFont("Courier", "", 8)
	pdf.SetTextColor(15, 98, 254)
	pdf.CellFormat(0, 5, tr(e.ArticleURL), "", 1, "", false, 0, e.ArticleURL)
	pdf.Ln(4)
}

func sortedCategories(counts map[model.Category]int) []model.Category {
	categories := make([]model.Category, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i] < categories[j]
	})
	return categories
}

// feature_launch -> Feature Launch
func categoryTitle(c model.Category) string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
