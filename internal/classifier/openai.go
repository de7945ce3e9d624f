package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey - без ключа классификатор не создается вообще
var ErrMissingAPIKey = errors.New("openai api key is not set")

// OpenAICompleter ходит в chat completions в режиме строгого JSON
type OpenAICompleter struct {
	// sdk для openai
	client    *openai.Client
	model     string
	maxTokens int
	retries   int

	retryInterval time.Duration
}

func NewOpenAICompleter(apiKey, baseURL, model string, maxTokens int, timeout time.Duration, retries int) (*OpenAICompleter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAICompleter{
		client:        openai.NewClientWithConfig(config),
		model:         model,
		maxTokens:     maxTokens,
		retries:       retries,
		retryInterval: time.Second,
	}, nil
}

// Complete отправляет пару system+user и возвращает сырой JSON из первого варианта ответа
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	// Нулевую температуру sdk выкидывает из запроса как пустое значение, и сервер берет свою по умолчанию.
	// Поэтому передаем минимальное ненулевое значение.
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var content string

	operation := func() error {
		resp, err := c.client.CreateChatCompletion(ctx, request)
		if err != nil {
			if ctx.Err() == nil && retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		// openai отправляет несколько вариантов, берем первый
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("openai returned no choices"))
		}
		content = resp.Choices[0].Message.Content

		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx)); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return content, nil
}

// Повторяем только то, что может пройти со второго раза: лимиты, 5xx и сетевые ошибки
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	return true
}
