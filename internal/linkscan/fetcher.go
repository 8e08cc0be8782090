// Package linkscan fetches a linked page and reduces it to readable text for link previews.
package linkscan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/schema"
)

// Defaults for the fetcher.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) browserx"
)

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// TextLimit caps the returned text in runes.
	TextLimit int
}

// Fetcher downloads link targets for previews.
type Fetcher struct {
	http      *resty.Client
	policy    *bluemonday.Policy
	timeout   time.Duration
	textLimit int
}

// New constructs a fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.TextLimit <= 0 {
		cfg.TextLimit = schema.PreviewTextLimit
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")
	return &Fetcher{
		http:      client,
		policy:    bluemonday.StrictPolicy(),
		timeout:   cfg.Timeout,
		textLimit: cfg.TextLimit,
	}
}

// Fetch downloads rawURL and extracts its title and visible text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (schema.PagePreview, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return schema.PagePreview{}, err
	}
	log := logx.Ctx(ctx).With("url", target)
	resp, err := f.http.R().SetContext(ctx).Get(target)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return schema.PagePreview{}, ctx.Err()
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return schema.PagePreview{}, &schema.TimeoutError{Op: "link fetch", After: f.timeout}
		}
		log.Debug("link fetch failed", "err", err)
		return schema.PagePreview{}, &schema.BackendError{Reason: schema.BackendNetwork, Err: err}
	}
	if status := resp.StatusCode(); status < 200 || status >= 400 {
		return schema.PagePreview{}, &schema.BackendError{
			Reason:  schema.BackendBadResponse,
			Status:  status,
			Message: "link target returned " + resp.Status(),
		}
	}
	preview, err := f.Extract(target, resp.Header().Get("Content-Type"), resp.Body())
	if err != nil {
		return schema.PagePreview{}, err
	}
	log.Trace("link fetched", "title", preview.Title, "chars", utf8.RuneCountInString(preview.Text))
	return preview, nil
}

// Extract reduces a response body to title and text.
func (f *Fetcher) Extract(pageURL, contentType string, body []byte) (schema.PagePreview, error) {
	preview := schema.PagePreview{URL: pageURL}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/plain") {
		preview.Text = truncate(normalizeSpace(string(body)), f.textLimit)
		return preview, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return schema.PagePreview{}, &schema.BackendError{
			Reason: schema.BackendBadResponse,
			Err:    &schema.ParseError{Tag: "link html", Err: err},
		}
	}
	preview.Title = normalizeSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, svg, iframe, nav, footer").Remove()
	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	markup, err := root.Html()
	if err != nil {
		return schema.PagePreview{}, &schema.BackendError{
			Reason: schema.BackendBadResponse,
			Err:    &schema.ParseError{Tag: "link html", Err: err},
		}
	}
	// StrictPolicy strips every element; block boundaries become spaces first.
	markup = blockBreaks.Replace(markup)
	text := html.UnescapeString(f.policy.Sanitize(markup))
	preview.Text = truncate(normalizeSpace(text), f.textLimit)
	if preview.Text == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			preview.Text = truncate(normalizeSpace(desc), f.textLimit)
		}
	}
	return preview, nil
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", schema.ErrInvalidRequest, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", schema.ErrInvalidRequest)
	}
	parsed.Fragment = ""
	return parsed.String(), nil
}

func normalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncate(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

var blockBreaks = strings.NewReplacer("<br>", " ", "<br/>", " ", "</p>", " ", "</div>", " ", "</li>", " ", "</h1>", " ", "</h2>", " ", "</h3>", " ", "</td>", " ")
