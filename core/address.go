package core

import (
	"net"
	"net/url"
	"strings"

	"pkt.systems/browserx/schema"
)

var passthroughSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
	"about": true,
	"data":  true,
}

// ResolveInput turns address bar input into a URL. Input that does not look like an
// address becomes a search on the configured engine.
func ResolveInput(input string, engine schema.SearchEngine) (string, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", schema.ErrEmptyInput
	}
	if idx := strings.Index(text, ":"); idx > 0 {
		scheme := strings.ToLower(text[:idx])
		if passthroughSchemes[scheme] {
			if u, err := url.Parse(text); err == nil && (u.Host != "" || u.Opaque != "" || scheme == "about" || scheme == "file") {
				return text, nil
			}
		}
	}
	if strings.ContainsAny(text, " \t") {
		return SearchURL(text, engine), nil
	}
	host := text
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	switch {
	case strings.EqualFold(hostname, "localhost"):
		return "http://" + text, nil
	case net.ParseIP(hostname) != nil:
		return "http://" + text, nil
	case looksLikeDomain(hostname):
		return "https://" + text, nil
	}
	return SearchURL(text, engine), nil
}

// SearchURL builds a search URL for the query.
func SearchURL(query string, engine schema.SearchEngine) string {
	q := url.QueryEscape(strings.TrimSpace(query))
	switch engine {
	case schema.SearchDuckDuckGo:
		return "https://duckduckgo.com/?q=" + q
	case schema.SearchBing:
		return "https://www.bing.com/search?q=" + q
	default:
		return "https://www.google.com/search?q=" + q
	}
}

func looksLikeDomain(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127 {
				continue
			}
			return false
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}

func isWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
