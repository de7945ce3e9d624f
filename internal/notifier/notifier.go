package notifier

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/competitor-scout/internal/botkit/markup"
	"github.com/kovalyov-valentin/competitor-scout/internal/model"
)

type EventProvider interface {
	Since(ctx context.Context, since time.Time, limit uint64) ([]model.EventWithContext, error)
}

// Sender реализуется *tgbotapi.BotAPI
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Размер страницы, которой читаем события из хранилища
const batchSize = 20

type Notifier struct {
	// Провайдер для событий
	events EventProvider
	// Клиент телеграма
	bot Sender
	// Интервал, с которым notifier будет проверять есть ли новые события
	sendInterval time.Duration
	// id канала куда мы будем постить события
	channelID int64
	// События ниже этого уровня в канал не попадают
	minImpact model.ImpactLevel

	mu sync.Mutex
	// Время создания последнего отправленного события
	cursor time.Time
}

func New(
	events EventProvider,
	bot Sender,
	sendInterval time.Duration,
	lookupTimeWindow time.Duration,
	channelID int64,
	minImpact model.ImpactLevel,
) *Notifier {
	return &Notifier{
		events:       events,
		bot:          bot,
		sendInterval: sendInterval,
		channelID:    channelID,
		minImpact:    minImpact,
		// На старте заглядываем в прошлое на lookupTimeWindow
		cursor: time.Now().Add(-lookupTimeWindow),
	}
}

func (n *Notifier) Start(ctx context.Context) error {
	ticker := time.NewTicker(n.sendInterval)
	defer ticker.Stop()

	if err := n.SelectAndSendEvents(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			if err := n.SelectAndSendEvents(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SelectAndSendEvents отправляет в канал события, появившиеся после последней отправки.
// Читает страницами, пока хранилище не отдаст неполную страницу
func (n *Notifier) SelectAndSendEvents(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		// Провайдер отдает самые старые первыми, в канал шлем в хронологическом порядке
		events, err := n.events.Since(ctx, n.cursor, batchSize)
		if err != nil {
			return fmt.Errorf("select events since %s: %w", n.cursor.Format(time.RFC3339), err)
		}

		before := n.cursor
		for _, e := range events {
			if e.ImpactLevel.Rank() >= n.minImpact.Rank() {
				if err := n.sendEvent(e); err != nil {
					return err
				}
			}

			// Курсор двигаем только после успешной отправки
			if e.CreatedAt.After(n.cursor) {
				n.cursor = e.CreatedAt
			}
		}

		if uint64(len(events)) < batchSize || !n.cursor.After(before) {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (n *Notifier) sendEvent(e model.EventWithContext) error {
	msg := tgbotapi.NewMessage(n.channelID, FormatEvent(e))
	// Даем понять телеграм, чтобы это сообщение парсилось как markdown сообщение
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send event %d: %w", e.ID, err)
	}

	log.Printf("[INFO] event %d of %s posted to channel", e.ID, e.CompetitorName)
	return nil
}

var impactEmoji = map[model.ImpactLevel]string{
	model.ImpactHigh:   "🔴",
	model.ImpactMedium: "🟡",
	model.ImpactLow:    "🟢",
}

// FormatEvent собирает текст сообщения в MarkdownV2.
// Сначала жирным конкурент и заголовок, потом категория и влияние, summary и ссылка на статью
func FormatEvent(e model.EventWithContext) string {
	const msgFormat = "%s *%s: %s*\n_%s · impact %s_\n\n%s%s\n\n%s"

	emoji, ok := impactEmoji[e.ImpactLevel]
	if !ok {
		emoji = "⚪"
	}

	var entities string
	if len(e.Entities) > 0 {
		entities = "\n\n" + markup.EscapeForMarkdown(strings.Join(e.Entities, ", "))
	}

	return fmt.Sprintf(
		msgFormat,
		emoji,
		markup.EscapeForMarkdown(e.CompetitorName),
		markup.EscapeForMarkdown(e.ArticleTitle),
		markup.EscapeForMarkdown(string(e.Category)),
		markup.EscapeForMarkdown(string(e.ImpactLevel)),
		markup.EscapeForMarkdown(e.Summary),
		entities,
		markup.EscapeForMarkdown(e.ArticleURL),
	)
}
