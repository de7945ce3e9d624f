package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/competitor-scout/internal/botkit"
	"github.com/kovalyov-valentin/competitor-scout/internal/botkit/markup"
	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type CompetitorRegistry interface {
	Register(ctx context.Context, name, setName string) (int64, error)
}

type SourceRegistry interface {
	Register(ctx context.Context, competitorID int64, url string, kind model.SourceKind) (int64, error)
}

type addSourceArgs struct {
	Competitor string `json:"competitor"`
	Set        string `json:"set"`
	URL        string `json:"url"`
	Kind       string `json:"kind"`
}

func (a addSourceArgs) validate() error {
	if strings.TrimSpace(a.Competitor) == "" || strings.TrimSpace(a.Set) == "" {
		return errors.New("competitor and set are required")
	}

	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q", a.URL)
	}

	switch model.SourceKind(a.Kind) {
	case model.SourceKindRSS, model.SourceKindHTML:
		return nil
	default:
		return fmt.Errorf("unknown source kind %q, expected rss or html", a.Kind)
	}
}

// ViewCmdAddSource добавляет источник конкуренту. Конкурент создается, если его еще нет.
// Пример: /addsource {"competitor":"Acme","set":"Analytics","url":"https://acme.com/feed","kind":"rss"}
func ViewCmdAddSource(competitors CompetitorRegistry, sources SourceRegistry) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		args, err := botkit.ParseJSON[addSourceArgs](update.Message.CommandArguments())
		if err == nil {
			err = args.validate()
		}
		if err != nil {
			// Некорректный инпут это не внутренняя ошибка, просто подсказываем формат
			reply := tgbotapi.NewMessage(update.Message.Chat.ID, fmt.Sprintf(
				"Некорректные аргументы: %s\n\nПример: `/addsource {\"competitor\":\"Acme\",\"set\":\"Analytics\",\"url\":\"https://acme.com/feed\",\"kind\":\"rss\"}`",
				markup.EscapeForMarkdown(err.Error()),
			))
			reply.ParseMode = tgbotapi.ModeMarkdownV2
			_, sendErr := bot.Send(reply)
			return sendErr
		}

		competitorID, err := competitors.Register(ctx, args.Competitor, args.Set)
		if err != nil {
			return err
		}

		sourceID, err := sources.Register(ctx, competitorID, args.URL, model.SourceKind(args.Kind))
		if err != nil {
			return err
		}

		reply := tgbotapi.NewMessage(update.Message.Chat.ID, fmt.Sprintf(
			"Источник добавлен с ID: `%d` для конкурента *%s*\\.",
			sourceID,
			markup.EscapeForMarkdown(args.Competitor),
		))
		reply.ParseMode = tgbotapi.ModeMarkdownV2

		if _, err := bot.Send(reply); err != nil {
			return err
		}

		return nil
	}
}
