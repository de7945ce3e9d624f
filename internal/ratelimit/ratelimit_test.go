package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWindowCapsRequestsPerPeriod(t *testing.T) {
	t.Parallel()

	w := NewWindow(3, time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := w.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 950*time.Millisecond {
		t.Fatalf("5 requests with a 3/s cap took %v, want at least ~1s", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("window waited too long: %v", elapsed)
	}
}

func TestWindowFirstRequestsDoNotWait(t *testing.T) {
	t.Parallel()

	w := NewWindow(3, time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := w.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("requests inside the cap should pass immediately, took %v", elapsed)
	}
}

func TestWindowHonoursContext(t *testing.T) {
	t.Parallel()

	w := NewWindow(1, time.Hour)
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := w.Wait(ctx); err == nil {
		t.Fatalf("expected context error when window is full")
	}
}

func TestDomainLimiterSpacesSameDomain(t *testing.T) {
	t.Parallel()

	const delay = 300 * time.Millisecond
	l := NewDomainLimiter(delay)
	ctx := context.Background()

	if err := l.Wait(ctx, "https://example.com/blog"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://example.com/feed.xml"); err != nil {
		t.Fatalf("second wait: %v", err)
	}

	if elapsed := time.Since(start); elapsed < delay-30*time.Millisecond {
		t.Fatalf("same-domain requests were spaced by %v, want >= %v", elapsed, delay)
	}
}

func TestDomainLimiterDoesNotDelayOtherDomains(t *testing.T) {
	t.Parallel()

	l := NewDomainLimiter(time.Second)
	ctx := context.Background()

	start := time.Now()
	for _, u := range []string{"https://a.example.com/", "https://b.example.com/", "https://c.example.com/"} {
		if err := l.Wait(ctx, u); err != nil {
			t.Fatalf("wait %s: %v", u, err)
		}
	}

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("different domains should not wait for each other, took %v", elapsed)
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://Mixpanel.com/blog/":   "mixpanel.com",
		"http://example.org:8080/feed": "example.org:8080",
		"not a url":                    "not a url",
	}

	for in, want := range cases {
		if got := Domain(in); got != want {
			t.Fatalf("Domain(%q) = %q, want %q", in, got, want)
		}
	}
}
