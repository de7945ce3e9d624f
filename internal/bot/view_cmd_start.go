package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/competitor-scout/internal/botkit"
)

const startText = `Привет\! Я слежу за конкурентами и присылаю в канал важные события\.

/listsources \- список источников
/stats \- сводка по наборам конкурентов
/events _набор_ \- последние события набора
/addsource \- добавить источник \(только для админов\)`

func ViewCmdStart() botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		reply := tgbotapi.NewMessage(update.Message.Chat.ID, startText)
		reply.ParseMode = tgbotapi.ModeMarkdownV2

		if _, err := bot.Send(reply); err != nil {
			return err
		}
		return nil
	}
}
