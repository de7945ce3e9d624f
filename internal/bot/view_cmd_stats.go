package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/botkit"
	"github.com/kovalyov-valentin/competitor-scout/internal/botkit/markup"
	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type SetLister interface {
	SetNames(ctx context.Context) ([]string, error)
}

type StatsProvider interface {
	StatsBySet(ctx context.Context, setName string) (model.EventStats, error)
}

type UnclassifiedCounter interface {
	CountUnclassified(ctx context.Context, setName string) (int, error)
}

// Сводка по одному набору для сообщения
type setSummary struct {
	Name         string
	Stats        model.EventStats
	Unclassified int
}

// ViewCmdStats показывает сводку по набору из аргумента команды, а без аргумента по всем наборам
func ViewCmdStats(sets SetLister, stats StatsProvider, articles UnclassifiedCounter) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		names, err := sets.SetNames(ctx)
		if err != nil {
			return err
		}

		if setName := strings.TrimSpace(update.Message.CommandArguments()); setName != "" {
			if !lo.Contains(names, setName) {
				reply := tgbotapi.NewMessage(update.Message.Chat.ID, fmt.Sprintf(
					"Набор *%s* не найден\\.",
					markup.EscapeForMarkdown(setName),
				))
				reply.ParseMode = tgbotapi.ModeMarkdownV2
				_, err := bot.Send(reply)
				return err
			}
			names = []string{setName}
		}

		summaries := make([]setSummary, 0, len(names))
		for _, name := range names {
			s, err := stats.StatsBySet(ctx, name)
			if err != nil {
				return fmt.Errorf("stats of %s: %w", name, err)
			}

			unclassified, err := articles.CountUnclassified(ctx, name)
			if err != nil {
				return fmt.Errorf("count unclassified of %s: %w", name, err)
			}

			summaries = append(summaries, setSummary{Name: name, Stats: s, Unclassified: unclassified})
		}

		reply := tgbotapi.NewMessage(update.Message.Chat.ID, formatStats(summaries))
		reply.ParseMode = tgbotapi.ModeMarkdownV2

		if _, err := bot.Send(reply); err != nil {
			return err
		}
		return nil
	}
}

func formatStats(summaries []setSummary) string {
	if len(summaries) == 0 {
		return "Наборов конкурентов пока нет\\."
	}

	blocks := make([]string, 0, len(summaries))
	for _, s := range summaries {
		var b strings.Builder
		fmt.Fprintf(&b, "📊 *%s*\nСобытий: %d, ждут классификации: %d", markup.EscapeForMarkdown(s.Name), s.Stats.Total, s.Unclassified)

		categories := make([]string, 0, len(s.Stats.ByCategory))
		for c := range s.Stats.ByCategory {
			categories = append(categories, string(c))
		}
		sort.Strings(categories)

		for _, c := range categories {
			fmt.Fprintf(&b, "\n  %s: %d", markup.EscapeForMarkdown(c), s.Stats.ByCategory[model.Category(c)])
		}

		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, "\n\n")
}
