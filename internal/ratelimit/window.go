package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window - скользящее окно: не больше limit запросов за period.
// Если окно заполнено, Wait ждет пока самый старый запрос из него не выйдет.
type Window struct {
	limit  int
	period time.Duration

	mu    sync.Mutex
	times []time.Time
}

func NewWindow(limit int, period time.Duration) *Window {
	return &Window{
		limit:  limit,
		period: period,
	}
}

func (w *Window) Wait(ctx context.Context) error {
	if w.limit <= 0 {
		return nil
	}

	for {
		wait := w.reserve(time.Now())
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve либо занимает место в окне и возвращает 0, либо говорит сколько еще ждать
func (w *Window) reserve(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Выкидываем запросы, которые уже вышли из окна
	kept := w.times[:0]
	for _, t := range w.times {
		if now.Sub(t) < w.period {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if len(w.times) < w.limit {
		w.times = append(w.times, now)
		return 0
	}

	wait := w.period - now.Sub(w.times[0])
	if wait <= 0 {
		wait = time.Millisecond
	}

	return wait
}
