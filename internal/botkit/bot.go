package botkit

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Сколько времени даем одной view на обработку команды
const updateTimeout = 10 * time.Second

type Bot struct {
	// Инстанс апи телеграма
	api *tgbotapi.BotAPI
	// Мапа в которой храним view по имени команды
	cmdViews map[string]ViewFunc
}

// ViewFunc реагирует на определенную команду.
// Update это любой эвент, который приходит от телеграма при взаимодействии пользователя с ботом
type ViewFunc func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error

func New(api *tgbotapi.BotAPI) *Bot {
	return &Bot{
		api:      api,
		cmdViews: make(map[string]ViewFunc),
	}
}

// RegisterCmdView регистрирует view для команды
func (b *Bot) RegisterCmdView(cmd string, view ViewFunc) {
	b.cmdViews[cmd] = view
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	log.Printf("[INFO] bot @%s is listening, commands: %d", b.api.Self.UserName, len(b.cmdViews))

	for {
		select {
		case update := <-updates:
			updateCtx, updateCancel := context.WithTimeout(ctx, updateTimeout)
			b.handleUpdate(updateCtx, update)
			updateCancel()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleUpdate роутит команду на соответствующую view
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// В какой-нибудь view может произойти паника, бот при этом должен продолжить работу
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[ERROR] panic recovered: %v\n%s", p, string(debug.Stack()))
		}
	}()

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	cmd := update.Message.Command()

	view, ok := b.cmdViews[cmd]
	if !ok {
		b.reply(update.Message.Chat.ID, "Неизвестная команда, список команд: /start")
		return
	}

	if err := view(ctx, b.api, update); err != nil {
		log.Printf("[ERROR] failed to handle command %q from chat %d: %v", cmd, update.Message.Chat.ID, err)
		b.reply(update.Message.Chat.ID, "internal error")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("[ERROR] failed to send message: %v", err)
	}
}
