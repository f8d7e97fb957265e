package web

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Client fetches documents for one storage partition. Each partition gets a
// jar of its own; guests in distinct partitions never observe each other's
// cookies.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker

	mu      sync.RWMutex
	limiter *rate.Limiter
}

func newClient(partition, userAgent string, timeout time.Duration) *Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 5 * time.Second
	retry.Logger = nil

	jar, _ := cookiejar.New(nil)

	rc := resty.New().
		SetTimeout(timeout).
		SetCookieJar(jar).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	rc.SetTransport(retry.HTTPClient.Transport)

	breaker := resilience.New("fetch:"+partition, resilience.Settings{
		Probes:   5,
		Window:   time.Minute,
		Cooldown: 30 * time.Second,
		Trip: func(c resilience.Counts) bool {
			// External sites vary in reliability; trip only on sustained
			// failure.
			return c.ConsecutiveFailures >= 10 ||
				(c.Requests >= 20 && float64(c.TotalFailures)/float64(c.Requests) > 0.7)
		},
	})

	return &Client{
		resty:   rc,
		limiter: rate.NewLimiter(rate.Inf, 0),
		breaker: breaker,
	}
}

// SetRateLimit caps outbound requests per second. rps <= 0 removes the cap.
// Safe to call while fetches are in flight; in-flight waits finish against
// the old limiter.
func (c *Client) SetRateLimit(rps float64) {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
	c.mu.Lock()
	c.limiter = limiter
	c.mu.Unlock()
}

// Fetch performs a GET through the rate limiter and circuit breaker.
func (c *Client) Fetch(ctx context.Context, url, referrer string) (*resty.Response, error) {
	if c.breaker.State() == resilience.StateOpen {
		return nil, fmt.Errorf("fetch %s: %w", url, resilience.ErrOpen)
	}
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req := c.resty.R().SetContext(ctx)
	if referrer != "" {
		req.SetHeader("Referer", referrer)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return req.Get(url)
	})
	if err != nil {
		return nil, err
	}
	return result.(*resty.Response), nil
}

// BreakerState reports the fetch breaker's current state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}
