// Package fetch opens media sources over HTTP. It performs a bounded HEAD
// probe to learn size and naming metadata, then an unbounded GET whose body
// is streamed straight into the transcode engine. Compressed transfer
// encodings are decoded transparently so the engine always sees container
// bytes.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Elghamazy/comoe/internal/log"
	"github.com/Elghamazy/comoe/internal/metrics"
)

// Browser-shaped request headers. Several media hosts refuse or throttle
// obvious bot traffic, and the trailing open Range advertises resumability
// which unlocks 206 responses on some CDNs.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config carries the outbound HTTP settings, populated from config.FetchConfig.
type Config struct {
	ProbeTimeout time.Duration
	MaxRedirects int
	UserAgent    string
}

// ProbeResult is the metadata learned about a source before streaming it.
type ProbeResult struct {
	// ContentLength is the source size in bytes, or -1 when the upstream
	// did not report one.
	ContentLength int64
	ContentType   string
	// Disposition is the raw Content-Disposition header, used for naming
	// the compressed download.
	Disposition string
}

// Client issues probe and stream requests against media sources.
type Client struct {
	cfg    Config
	probe  *http.Client
	stream *http.Client
	logger zerolog.Logger
}

// New builds a Client with two views over one pooled transport: a probe
// client bounded by cfg.ProbeTimeout, and a stream client with no overall
// deadline because transfers run for as long as the media lasts. Cancelling
// the request context is what ends a stream early.
func New(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	rt := otelhttp.NewTransport(transport)
	redirect := redirectPolicy(cfg.MaxRedirects)
	return &Client{
		cfg: cfg,
		probe: &http.Client{
			Timeout:       cfg.ProbeTimeout,
			Transport:     rt,
			CheckRedirect: redirect,
		},
		stream: &http.Client{
			Transport:     rt,
			CheckRedirect: redirect,
		},
		logger: log.WithComponent("fetch"),
	}
}

// Probe issues a HEAD request and reports what the upstream claims about
// the source. Any status >= 400 is returned as a StatusError.
func (c *Client) Probe(ctx context.Context, rawURL string) (ProbeResult, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return ProbeResult{}, err
	}
	req, err := c.newRequest(ctx, http.MethodHead, target)
	if err != nil {
		return ProbeResult{}, err
	}

	start := time.Now()
	resp, err := c.probe.Do(req)
	metrics.ObserveProbeDuration(time.Since(start))
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe %s: %w", req.URL.Host, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return ProbeResult{}, &StatusError{Code: resp.StatusCode}
	}

	result := probeResultFrom(resp)
	c.logger.Debug().
		Str("event", "fetch.probe").
		Str("host", req.URL.Host).
		Int("status", resp.StatusCode).
		Int64("content_length", result.ContentLength).
		Str("content_type", result.ContentType).
		Msg("source probed")
	return result, nil
}

// Open issues the streaming GET and returns the decoded body. The caller
// owns the returned ReadCloser; cancelling ctx aborts the transfer and
// surfaces as a read error. Any status >= 400 is returned as a StatusError.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, ProbeResult, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return nil, ProbeResult{}, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, target)
	if err != nil {
		return nil, ProbeResult{}, err
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, ProbeResult{}, fmt.Errorf("open %s: %w", req.URL.Host, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, ProbeResult{}, &StatusError{Code: resp.StatusCode}
	}

	result := probeResultFrom(resp)
	body := resp.Body
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip", "x-gzip", "deflate":
		body = newDecodeReader(resp.Body, enc)
	default:
		// br and friends pass through undecoded. The engine will almost
		// certainly reject the stream, but failing loudly there beats
		// guessing here.
		c.logger.Warn().
			Str("event", "fetch.encoding_passthrough").
			Str("host", req.URL.Host).
			Str("content_encoding", enc).
			Msg("unsupported content encoding passed through")
	}

	c.logger.Debug().
		Str("event", "fetch.open").
		Str("host", req.URL.Host).
		Int("status", resp.StatusCode).
		Int64("content_length", result.ContentLength).
		Msg("source stream opened")
	return body, result, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Range", "bytes=0-")
	return req, nil
}

func redirectPolicy(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("%w (limit %d)", ErrTooManyRedirects, maxRedirects)
		}
		return nil
	}
}

func probeResultFrom(resp *http.Response) ProbeResult {
	result := ProbeResult{
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
		Disposition:   resp.Header.Get("Content-Disposition"),
	}
	if result.ContentLength < 0 {
		if n, ok := totalFromContentRange(resp.Header.Get("Content-Range")); ok {
			result.ContentLength = n
		} else {
			result.ContentLength = -1
		}
	}
	// A 206 body only covers the requested range; the Content-Range total
	// is the real source size.
	if resp.StatusCode == http.StatusPartialContent {
		if n, ok := totalFromContentRange(resp.Header.Get("Content-Range")); ok {
			result.ContentLength = n
		}
	}
	return result
}

// totalFromContentRange extracts the complete length from a header such as
// "bytes 0-1233/1234". An unknown total ("bytes 0-1233/*") reports false.
func totalFromContentRange(h string) (int64, bool) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(h[i+1:]), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
