package support

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// UserAgent is sent with every outbound request.
const UserAgent = "Mozilla/5.0 (compatible; ipwarden/1.0)"

// NewHTTPClient builds the client used for whitelist and log API fetches.
// proxyURL may be empty, an http(s):// proxy, or a socks5:// proxy.
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}

		switch strings.ToLower(parsed.Scheme) {
		case "http", "https":
			transport.Proxy = http.ProxyURL(parsed)
		case "socks5", "socks5h":
			socksDialer, err := proxy.FromURL(parsed, dialer)
			if err != nil {
				return nil, fmt.Errorf("create socks dialer: %w", err)
			}
			contextDialer, ok := socksDialer.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks dialer for %s does not support contexts", parsed.Host)
			}
			transport.DialContext = contextDialer.DialContext
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
		}
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// NewGetRequest builds a GET request carrying the default headers.
func NewGetRequest(ctx context.Context, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}
