package scraper

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Endpoint is one proxy server.
type Endpoint struct {
	URL string
}

func (endpoint Endpoint) String() string {
	return endpoint.URL
}

// EndpointPool hands out proxies. Callers never manage membership; they only report
// endpoints that stopped working.
type EndpointPool interface {
	HealthyEndpoint(ctx context.Context) (Endpoint, bool)
	MarkDead(endpoint Endpoint)
}

type ProxyPoolOptions struct {
	Endpoints    []string      // static list, scheme://host:port or host:port
	ListURL      string        // optional plain-text list, one proxy per line
	CheckURL     string        // fetched through each proxy to test it
	CheckTimeout time.Duration // per health check
	HealthTTL    time.Duration // how long a passed check is trusted
}

// ProxyPool is a round-robin pool with lazy health checks.
type ProxyPool struct {
	options ProxyPoolOptions
	log     Logger
	client  *resty.Client

	mu       sync.Mutex
	refresh  sync.Once
	order    []Endpoint
	dead     map[string]bool
	verified map[string]time.Time
	next     int
}

func NewProxyPool(options ProxyPoolOptions, log Logger) *ProxyPool {
	if log == nil {
		log = DummyLogger{}
	}
	if options.CheckTimeout == 0 {
		options.CheckTimeout = 10 * time.Second
	}
	if options.HealthTTL == 0 {
		options.HealthTTL = 5 * time.Minute
	}
	if options.CheckURL == "" {
		options.CheckURL = "https://www.facebook.com/robots.txt"
	}
	pool := &ProxyPool{
		options:  options,
		log:      log,
		client:   resty.New().SetTimeout(options.CheckTimeout),
		dead:     map[string]bool{},
		verified: map[string]time.Time{},
	}
	for _, raw := range options.Endpoints {
		pool.add(raw)
	}
	return pool
}

func normalizeProxy(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s, true
}

func (pool *ProxyPool) add(raw string) bool {
	u, ok := normalizeProxy(raw)
	if !ok {
		return false
	}
	for _, endpoint := range pool.order {
		if endpoint.URL == u {
			return false
		}
	}
	pool.order = append(pool.order, Endpoint{URL: u})
	return true
}

// Refresh fetches the proxy list and adds any new entries.
func (pool *ProxyPool) Refresh(ctx context.Context) (int, error) {
	if pool.options.ListURL == "" {
		return 0, nil
	}
	resp, err := pool.client.R().SetContext(ctx).Get(pool.options.ListURL)
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("proxy list %v: %v", pool.options.ListURL, resp.Status())
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	added := 0
	scanner := bufio.NewScanner(strings.NewReader(resp.String()))
	for scanner.Scan() {
		if pool.add(scanner.Text()) {
			added++
		}
	}
	pool.log.Printf("proxy: %d new endpoints from %v", added, pool.options.ListURL)
	return added, scanner.Err()
}

// Check fetches CheckURL through endpoint.
func (pool *ProxyPool) Check(ctx context.Context, endpoint Endpoint) bool {
	client := resty.New().
		SetProxy(endpoint.URL).
		SetTimeout(pool.options.CheckTimeout).
		SetRedirectPolicy(resty.NoRedirectPolicy())
	resp, err := client.R().SetContext(ctx).Head(pool.options.CheckURL)
	if err != nil {
		pool.log.Printf("proxy: %v failed health check: %v", endpoint, err)
		return false
	}
	ok := resp.StatusCode() > 0 && resp.StatusCode() < 500
	if !ok {
		pool.log.Printf("proxy: %v failed health check: %v", endpoint, resp.Status())
	}
	return ok
}

// HealthyEndpoint returns the next endpoint that is not dead and passes a health check.
// It reports false when none does, and the caller then connects directly.
func (pool *ProxyPool) HealthyEndpoint(ctx context.Context) (Endpoint, bool) {
	pool.refresh.Do(func() {
		if _, err := pool.Refresh(ctx); err != nil {
			pool.log.Printf("proxy: list not fetched: %v", err)
		}
	})

	pool.mu.Lock()
	candidates := make([]Endpoint, 0, len(pool.order))
	for i := range pool.order {
		endpoint := pool.order[(pool.next+i)%len(pool.order)]
		if !pool.dead[endpoint.URL] {
			candidates = append(candidates, endpoint)
		}
	}
	pool.mu.Unlock()

	for _, endpoint := range candidates {
		if ctx.Err() != nil {
			break
		}
		pool.mu.Lock()
		checked, fresh := pool.verified[endpoint.URL]
		pool.mu.Unlock()
		if !fresh || time.Since(checked) > pool.options.HealthTTL {
			if !pool.Check(ctx, endpoint) {
				pool.MarkDead(endpoint)
				continue
			}
			pool.mu.Lock()
			pool.verified[endpoint.URL] = time.Now()
			pool.mu.Unlock()
		}
		pool.mu.Lock()
		pool.next = (pool.indexOf(endpoint) + 1) % len(pool.order)
		pool.mu.Unlock()
		return endpoint, true
	}
	return Endpoint{}, false
}

func (pool *ProxyPool) indexOf(endpoint Endpoint) int {
	for i, e := range pool.order {
		if e.URL == endpoint.URL {
			return i
		}
	}
	return 0
}

func (pool *ProxyPool) MarkDead(endpoint Endpoint) {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	pool.dead[endpoint.URL] = true
	delete(pool.verified, endpoint.URL)
	pool.log.Printf("proxy: %v marked dead", endpoint)
}

// Alive returns the endpoints not marked dead, in pool order.
func (pool *ProxyPool) Alive() []Endpoint {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	var out []Endpoint
	for _, endpoint := range pool.order {
		if !pool.dead[endpoint.URL] {
			out = append(out, endpoint)
		}
	}
	return out
}
