package worker

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://sci.ccc.nashville.gov/Search/SearchWarrant"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	// Different host should also work
	if err := limiter.Wait(ctx, "http://example.com"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_WaitCanceled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	url := "https://sci.ccc.nashville.gov/"

	if err := limiter.Wait(context.Background(), url); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx, url); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestLimiter_SharedBucketPerHost(t *testing.T) {
	limiter := NewLimiter(1, 1)

	// Search and details pages on the same host share one bucket.
	if err := limiter.Wait(context.Background(), "https://sci.ccc.nashville.gov/Search/SearchWarrant"); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if limiter.getLimiter("sci.ccc.nashville.gov").Allow() {
		t.Error("expected second request on same host to be throttled")
	}
	if !limiter.getLimiter("other.com").Allow() {
		t.Error("expected allow for other host")
	}
}

func TestLimiter_SetDomainRate(t *testing.T) {
	limiter := NewLimiter(10, 10)

	limiter.SetDomainRate("Slow.com", 0.1, 1)

	slow := limiter.getLimiter("slow.com")
	if !slow.Allow() {
		t.Errorf("first request should pass")
	}
	if slow.Allow() {
		t.Errorf("second request should fail")
	}
	if !limiter.getLimiter("fast.com").Allow() {
		t.Errorf("other host should pass")
	}
}

func TestLimiter_ApplyCrawlDelay(t *testing.T) {
	limiter := NewLimiter(10, 10)

	if !limiter.ApplyCrawlDelay("Portal.gov", 2*time.Second) {
		t.Fatal("expected crawl delay to tighten the limit")
	}
	if got := limiter.getLimiter("portal.gov").Limit(); got != rate.Every(2*time.Second) {
		t.Errorf("unexpected limit %v", got)
	}

	// A looser delay never relaxes the limit.
	if limiter.ApplyCrawlDelay("portal.gov", 10*time.Millisecond) {
		t.Error("expected looser crawl delay to be ignored")
	}
	if limiter.ApplyCrawlDelay("portal.gov", 0) {
		t.Error("expected zero crawl delay to be ignored")
	}

	// One token, then throttled until the delay elapses.
	p := limiter.getLimiter("portal.gov")
	if !p.Allow() || p.Allow() {
		t.Error("expected burst of one after crawl delay")
	}
}

func TestExtractHost(t *testing.T) {
	host, err := extractHost("http://Example.com/foo")
	if err != nil {
		t.Fatalf("extractHost failed: %v", err)
	}
	if host != "example.com" {
		t.Errorf("expected example.com, got %s", host)
	}

	if _, err = extractHost("::invalid"); err == nil {
		t.Errorf("expected error for invalid URL")
	}
}
