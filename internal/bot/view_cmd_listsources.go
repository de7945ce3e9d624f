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

type SourceLister interface {
	Sources(ctx context.Context) ([]model.Source, error)
}

func ViewCmdListSources(lister SourceLister) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		sources, err := lister.Sources(ctx)
		if err != nil {
			return err
		}

		reply := tgbotapi.NewMessage(update.Message.Chat.ID, formatSources(sources))
		reply.ParseMode = tgbotapi.ModeMarkdownV2

		if _, err := bot.Send(reply); err != nil {
			return err
		}
		return nil
	}
}

func formatSources(sources []model.Source) string {
	sourceInfos := lo.Map(sources, func(source model.Source, _ int) string {
		return formatSource(source)
	})

	return fmt.Sprintf(
		"Список источников \\(всего %d\\):\n\n%s",
		len(sources),
		strings.Join(sourceInfos, "\n\n"),
	)
}

// Форматированная информация об источнике
func formatSource(source model.Source) string {
	lastScraped := "еще не забирали"
	if source.LastScraped != nil {
		lastScraped = source.LastScraped.UTC().Format("2006-01-02 15:04 UTC")
	}

	return fmt.Sprintf(
		"🌐 *%s*\nID: `%d`\nТип: %s, статус: %s\nURL: %s\nПоследний сбор: %s",
		markup.EscapeForMarkdown(source.CompetitorName),
		source.ID,
		markup.EscapeForMarkdown(string(source.Kind)),
		markup.EscapeForMarkdown(source.Status),
		markup.EscapeForMarkdown(source.URL),
		markup.EscapeForMarkdown(lastScraped),
	)
}
