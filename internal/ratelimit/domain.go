package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter выдерживает минимальный интервал между запросами к одному и тому же домену.
// Запросы к разным доменам друг друга не ждут.
// Один инстанс на процесс, его делят все воркеры.
type DomainLimiter struct {
	delay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewDomainLimiter(delay time.Duration) *DomainLimiter {
	return &DomainLimiter{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait блокируется, пока к домену из rawURL снова можно ходить
func (l *DomainLimiter) Wait(ctx context.Context, rawURL string) error {
	if l.delay <= 0 {
		return nil
	}

	return l.limiter(Domain(rawURL)).Wait(ctx)
}

func (l *DomainLimiter) limiter(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[domain]
	if !ok {
		// burst 1: первый запрос сразу, каждый следующий не раньше чем через delay
		lim = rate.NewLimiter(rate.Every(l.delay), 1)
		l.limiters[domain] = lim
	}

	return lim
}

// Domain достает хост из урла. Если урл кривой, ключом будет сама строка.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	return strings.ToLower(u.Host)
}
