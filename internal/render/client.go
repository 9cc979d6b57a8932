package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	bypassHeader          = "x-ck-render-bypass"
	effectiveLocaleHeader = "x-ck-l10n-effective-locale"
	l10nStatusHeader      = "x-ck-l10n-status"

	defaultFetchTimeout = 15 * time.Second
	maxArtifactBytes    = 8 << 20
)

// Artifact is one fetched renderer response plus the localization headers
// the consistency gate inspects.
type Artifact struct {
	Body            []byte
	ContentType     string
	EffectiveLocale string
	L10nStatus      string
}

// Client talks to the upstream renderer. The bypass token makes the
// renderer skip its own cache so snapshots always capture fresh output.
type Client struct {
	BaseURL     string
	BypassToken string
	Timeout     time.Duration
	HTTP        *http.Client
}

func NewClient(baseURL, bypassToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		BypassToken: bypassToken,
		Timeout:     timeout,
		HTTP:        &http.Client{},
	}
}

// FetchEmbed retrieves the embed HTML for a locale.
func (c *Client) FetchEmbed(ctx context.Context, publicID, locale string) (*Artifact, error) {
	return c.fetch(ctx, "/e/"+url.PathEscape(publicID), locale, false)
}

// FetchRender retrieves the render JSON, or its metadata variant.
func (c *Client) FetchRender(ctx context.Context, publicID, locale string, meta bool) (*Artifact, error) {
	return c.fetch(ctx, "/r/"+url.PathEscape(publicID), locale, meta)
}

func (c *Client) fetch(ctx context.Context, path, locale string, meta bool) (*Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	q := url.Values{}
	if locale != "" {
		q.Set("locale", locale)
	}
	if meta {
		q.Set("meta", "1")
	}
	target := c.BaseURL + path
	if encoded := q.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("renderer request: %w", err)
	}
	if c.BypassToken != "" {
		req.Header.Set(bypassHeader, c.BypassToken)
	}

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("renderer fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("renderer fetch %s: status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("renderer fetch %s: read body: %w", path, err)
	}
	if len(body) > maxArtifactBytes {
		return nil, fmt.Errorf("renderer fetch %s: body exceeds %d bytes", path, maxArtifactBytes)
	}

	return &Artifact{
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		EffectiveLocale: strings.ToLower(strings.TrimSpace(resp.Header.Get(effectiveLocaleHeader))),
		L10nStatus:      strings.ToLower(strings.TrimSpace(resp.Header.Get(l10nStatusHeader))),
	}, nil
}

func (c *Client) http() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
