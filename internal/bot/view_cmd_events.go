package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/competitor-scout/internal/botkit"
	"github.com/kovalyov-valentin/competitor-scout/internal/botkit/markup"
	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

// Сколько последних событий показываем по команде
const recentEventsLimit = 5

type EventLister interface {
	BySet(ctx context.Context, setName string, limit uint64) ([]model.EventWithContext, error)
}

// ViewCmdEvents показывает последние события набора. Имя набора передается аргументом команды.
func ViewCmdEvents(sets SetLister, events EventLister) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		setName := strings.TrimSpace(update.Message.CommandArguments())

		names, err := sets.SetNames(ctx)
		if err != nil {
			return err
		}

		var text string
		if !lo.Contains(names, setName) {
			text = fmt.Sprintf(
				"Укажите набор: `/events <набор>`\\. Доступные наборы: %s",
				markup.EscapeForMarkdown(strings.Join(names, ", ")),
			)
		} else {
			recent, err := events.BySet(ctx, setName, recentEventsLimit)
			if err != nil {
				return err
			}
			text = formatEvents(setName, recent)
		}

		reply := tgbotapi.NewMessage(update.Message.Chat.ID, text)
		reply.ParseMode = tgbotapi.ModeMarkdownV2
		reply.DisableWebPagePreview = true

		if _, err := bot.Send(reply); err != nil {
			return err
		}
		return nil
	}
}

func formatEvents(setName string, events []model.EventWithContext) string {
	if len(events) == 0 {
		return fmt.Sprintf("В наборе *%s* событий пока нет\\.", markup.EscapeForMarkdown(setName))
	}

	lines := lo.Map(events, func(e model.EventWithContext, _ int) string {
		return fmt.Sprintf(
			"• *%s*: %s \\[%s, %s\\]\n%s",
			markup.EscapeForMarkdown(e.CompetitorName),
			markup.EscapeForMarkdown(e.Summary),
			markup.EscapeForMarkdown(string(e.Category)),
			markup.EscapeForMarkdown(string(e.ImpactLevel)),
			markup.EscapeForMarkdown(e.ArticleURL),
		)
	})

	return fmt.Sprintf("Последние события *%s*:\n\n%s", markup.EscapeForMarkdown(setName), strings.Join(lines, "\n\n"))
}
