package source

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Больше 5 MiB с одной страницы или ленты не читаем
const maxBodySize = 5 << 20

// RequestLimiter реализуется *ratelimit.DomainLimiter
type RequestLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Loader забирает RSS ленты и HTML страницы и превращает их в model.Item.
// Хранилища он не знает, состояния между вызовами не держит.
type Loader struct {
	client     *http.Client
	userAgents []string
	// Сколько раз повторяем запрос после первой неудачи
	retries int
	// Статьи короче этого (в символах) выкидываем
	minContentLength int
	// Сколько записей ленты максимум берем
	maxItems int

	// Начальная пауза между повторами, в тестах уменьшаем
	retryInterval time.Duration
	// Через него проходит каждый повтор. Первую попытку ограничивает вызывающий
	limiter RequestLimiter
}

func NewLoader(timeout time.Duration, retries int, userAgents []string, minContentLength, maxItems int) *Loader {
	return &Loader{
		client:           &http.Client{Timeout: timeout},
		userAgents:       userAgents,
		retries:          retries,
		minContentLength: minContentLength,
		maxItems:         maxItems,
		retryInterval:    500 * time.Millisecond,
	}
}

// StatusError - ответ сервера с неуспешным статусом
type StatusError struct {
	URL        string
	StatusCode int
}

// WithLimiter пускает повторные запросы через общий лимитер доменов
func (l *Loader) WithLimiter(limiter RequestLimiter) *Loader {
	l.limiter = limiter
	return l
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// get скачивает тело ответа. Сетевые ошибки, 429 и 5xx повторяются с экспоненциальной паузой,
// остальные 4xx сразу считаются окончательной ошибкой.
func (l *Loader) get(ctx context.Context, url string) ([]byte, error) {
	var (
		body    []byte
		attempt int
	)

	operation := func() error {
		attempt++
		if attempt > 1 && l.limiter != nil {
			if err := l.limiter.Wait(ctx, url); err != nil {
				return backoff.Permanent(fmt.Errorf("wait for %s: %w", url, err))
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("User-Agent", l.userAgent())
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")

		resp, err := l.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return &StatusError{URL: url, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return backoff.Permanent(&StatusError{URL: url, StatusCode: resp.StatusCode})
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryInterval

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(l.retries)), ctx)); err != nil {
		return nil, err
	}

	return body, nil
}

// Каждый запрос идет со случайным браузерным UA
func (l *Loader) userAgent() string {
	if len(l.userAgents) == 0 {
		return "Mozilla/5.0 (compatible; competitor-scout/1.0)"
	}
	return l.userAgents[rand.Intn(len(l.userAgents))]
}

func (l *Loader) longEnough(text string) bool {
	return len([]rune(text)) >= l.minContentLength
}

// Библиотека readability создает много пустых строк в тексте очищенном от html тегов.
// Все последовательности из 3 и больше переводов строк заменяем на один.
var redundantNewLines = regexp.MustCompile(`\n{3,}`)

func cleanText(text string) string {
	return strings.TrimSpace(redundantNewLines.ReplaceAllString(text, "\n"))
}
