// Package client provides the HTTP JSON client used against npm-compatible
// registries, including transport construction from resolved rc options and
// a per-host circuit breaker wrapper.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	"golang.org/x/net/http/httpproxy"
)

// TransportConfig carries the connection options resolved from rc files.
type TransportConfig struct {
	Proxy        string
	NoProxy      string
	StrictSSL    *bool  // nil means default (verify)
	CA           string // PEM bundle
	LocalAddress string
	MaxSockets   int
}

// Client is an HTTP client with retry logic for registry APIs.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxRetries uint64
	baseDelay  time.Duration
	authFn     func(url string) (headerName, headerValue string)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = uint64(n)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTransport rebuilds the underlying transport from resolved rc options.
func WithTransport(cfg TransportConfig) Option {
	return func(c *Client) {
		c.httpClient.Transport = newTransport(cfg)
	}
}

// WithAuthFunc sets a function that returns an auth header for a given URL.
// Return empty strings to skip authentication for that URL.
func WithAuthFunc(fn func(url string) (headerName, headerValue string)) Option {
	return func(c *Client) {
		c.authFn = fn
	}
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 5 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *Client {
	return NewClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: newTransport(TransportConfig{}),
		},
		userAgent:  "packument",
		maxRetries: 5,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	resolverOnce sync.Once
	dnsResolver  *dnscache.Resolver
)

// sharedResolver returns the process-wide DNS cache, refreshed every
// 5 minutes.
func sharedResolver() *dnscache.Resolver {
	resolverOnce.Do(func() {
		dnsResolver = &dnscache.Resolver{}
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				dnsResolver.Refresh(true)
			}
		}()
	})
	return dnsResolver
}

// newTransport builds an HTTP transport honoring the resolved rc options.
// An unusable CA bundle is skipped rather than failing construction; the
// connection then verifies against the system pool.
func newTransport(cfg TransportConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if cfg.LocalAddress != "" {
		if ip := net.ParseIP(cfg.LocalAddress); ip != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: ip}
		}
	}

	resolver := sharedResolver()
	t := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, fmt.Errorf("failed to dial any resolved IP")
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.MaxSockets > 0 {
		t.MaxConnsPerHost = cfg.MaxSockets
	}

	if cfg.Proxy != "" || cfg.NoProxy != "" {
		proxyFn := (&httpproxy.Config{
			HTTPProxy:  cfg.Proxy,
			HTTPSProxy: cfg.Proxy,
			NoProxy:    cfg.NoProxy,
		}).ProxyFunc()
		t.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxyFn(req.URL)
		}
	}

	tlsCfg := &tls.Config{}
	custom := false
	if cfg.StrictSSL != nil && !*cfg.StrictSSL {
		tlsCfg.InsecureSkipVerify = true
		custom = true
	}
	if cfg.CA != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(cfg.CA)) {
			tlsCfg.RootCAs = pool
			custom = true
		}
	}
	if custom {
		t.TLSClientConfig = tlsCfg
	}

	return t
}

// GetJSON performs a GET request and decodes the JSON response into out.
// 429 and 5xx responses are retried with exponential backoff up to the
// configured retry budget; other failures surface immediately.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	op := func() error {
		err := c.doGet(ctx, rawURL, out)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	// backoff.WithMaxRetries treats 0 as unlimited; a zero budget means a
	// single attempt here.
	if c.maxRetries == 0 {
		return c.doGet(ctx, rawURL, out)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
}

// retryable reports whether the failure is worth another attempt: rate
// limits and server errors. Not-found, client errors and malformed bodies
// are not.
func retryable(err error) bool {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return false
}

func (c *Client) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	// Full metadata, not the abbreviated install document: license,
	// deprecation and dist-tag data are only present in the full record.
	req.Header.Set("Accept", "application/json")

	if c.authFn != nil {
		if name, value := c.authFn(rawURL); name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", rawURL, err)
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitError{RetryAfter: retryAfter}

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Body: string(body)}
	}
}
