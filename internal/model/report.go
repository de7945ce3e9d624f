package model

import (
	"math"
	"time"
)

// Итог обхода одного конкурента
type CompetitorReport struct {
	TotalSources int `json:"total_sources"`
	NewArticles  int `json:"new_articles"`
	Duplicates   int `json:"duplicates"`
	// Статьи, отброшенные фильтром по ключевым словам
	Filtered int `json:"filtered"`
	// Источники, которые не удалось обработать
	Errors int `json:"errors"`
}

// Итог обхода всего набора конкурентов
type SetReport struct {
	RunID          string                      `json:"run_id"`
	SetName        string                      `json:"set_name"`
	Competitors    int                         `json:"competitors"`
	NewArticles    int                         `json:"new_articles"`
	Duplicates     int                         `json:"duplicates"`
	Filtered       int                         `json:"filtered"`
	Errors         int                         `json:"errors"`
	ElapsedSeconds float64                     `json:"elapsed_seconds"`
	PerCompetitor  map[string]CompetitorReport `json:"per_competitor"`
}

// Статистика пакетной классификации
type BatchStats struct {
	RunID string `json:"run_id"`
	Total int    `json:"total"`
	// Сохраненные события
	Classified           int `json:"classified"`
	SkippedLowConfidence int `json:"skipped_low_confidence"`
	SkippedOther         int `json:"skipped_other"`
	// Статьи, по которым событие уже есть в БД
	AlreadyClassified int `json:"already_classified"`
	Errors            int `json:"errors"`
	// Ответы, взятые из кэша без похода в модель
	Cached               int     `json:"cached"`
	ElapsedSeconds       float64 `json:"elapsed_seconds"`
	AvgSecondsPerArticle float64 `json:"avg_time_per_article"`
}

// Результат классификации набора.
// NothingToDo отличает "новых статей нет" от "прогнали, но ничего не прошло порог".
type ClassifyReport struct {
	SetName     string      `json:"set_name"`
	NothingToDo bool        `json:"nothing_to_do"`
	Message     string      `json:"message,omitempty"`
	Stats       *BatchStats `json:"stats,omitempty"`
}

// Classified возвращает число сохраненных событий, 0 если делать было нечего
func (r ClassifyReport) Classified() int {
	if r.Stats == nil {
		return 0
	}
	return r.Stats.Classified
}

// Seconds округляет длительность до сотых секунды, как в отчетах
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
