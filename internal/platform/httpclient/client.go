// Package httpclient provides the outbound HTTP client used for the Telegram
// API: a tuned transport plus request logging that never prints secrets
// embedded in URLs.
package httpclient

import (
	"context"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"regexp"
	"time"
)

// Client wraps http.Client with logging. It satisfies the Do-only client
// interface of github.com/go-telegram/bot.
type Client struct {
	hc          *stdhttp.Client
	log         *slog.Logger
	urlRedactor func(*url.URL) string
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the overall request timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithURLRedactor sets URL redactor for logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) { c.hc.Transport = rt }
}

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConns = 10
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ExpectContinueTimeout = time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   15 * time.Second,
			Transport: tr,
		},
		log:         slog.Default(),
		urlRedactor: RedactBotToken,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var botTokenPath = regexp.MustCompile(`/bot[^/]+/`)

// RedactBotToken hides the token in Telegram Bot API paths
// (/bot<token>/method) as well as any userinfo password.
func RedactBotToken(u *url.URL) string {
	return botTokenPath.ReplaceAllString(u.Redacted(), "/bot[REDACTED]/")
}

// Do sends req. Cancellation by the caller is not logged as a failure.
func (c *Client) Do(req *stdhttp.Request) (*stdhttp.Response, error) {
	u := c.urlRedactor(req.URL)
	start := time.Now()
	resp, err := c.hc.Do(req)
	dur := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// url.Error repeats the raw URL, token included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = u
		}
		c.log.Warn("http request error",
			slog.String("method", req.Method),
			slog.String("url", u),
			slog.Duration("dur", dur),
			slog.Any("error", err),
		)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	c.log.Log(req.Context(), level, "http request",
		slog.String("method", req.Method),
		slog.String("url", u),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", dur),
	)
	return resp, nil
}
