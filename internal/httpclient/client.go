// Package httpclient implements replay.Client on net/http.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

const contentTypeJSON = "application/json"

// Config controls client behavior.
type Config struct {
	UserAgent string
}

// Client issues blocking GET and POST calls with a per-call timeout.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client on a pooled transport.
func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: newHTTPTransport()},
	}
}

// Get fetches url verbatim. The query string is not re-encoded.
func (c *Client) Get(ctx context.Context, url string, timeout time.Duration) (replay.Response, error) {
	return c.do(ctx, http.MethodGet, url, "", timeout)
}

// PostJSON sends body verbatim with a JSON content type.
func (c *Client) PostJSON(ctx context.Context, url string, body string, timeout time.Duration) (replay.Response, error) {
	return c.do(ctx, http.MethodPost, url, body, timeout)
}

func (c *Client) do(
	ctx context.Context,
	method string,
	url string,
	body string,
	timeout time.Duration,
) (replay.Response, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if method == http.MethodPost {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, reader)
	if err != nil {
		return replay.Response{}, fmt.Errorf("%w: build %s %s: %w", replay.ErrTransport, method, url, err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return replay.Response{}, fmt.Errorf("%w: %s %s: %w", replay.ErrTransport, method, url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Raw bytes are kept; decoding happens once in replay.Response.Text.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return replay.Response{}, fmt.Errorf("%w: read %s %s: %w", replay.ErrTransport, method, url, err)
	}
	return replay.Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       data,
		Duration:   time.Since(start),
	}, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
	}
}
