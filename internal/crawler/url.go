package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL to avoid duplicate cache entries.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters and drops the fragment.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// AbsoluteURL resolves href against base. Unparseable input is returned trimmed.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// AbsURL builds the detail page URL for an identifier.
func AbsURL(base, id string) string {
	if id == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/abs/" + id
}

// PDFURL builds the download URL for an identifier.
func PDFURL(base, id string) string {
	if id == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/pdf/" + id
}

// IDFromURL extracts the identifier from an /abs/ or /pdf/ link.
func IDFromURL(link string) string {
	for _, marker := range []string{"/abs/", "/pdf/"} {
		idx := strings.Index(link, marker)
		if idx < 0 {
			continue
		}
		id := link[idx+len(marker):]
		if cut := strings.IndexAny(id, "?#"); cut >= 0 {
			id = id[:cut]
		}
		id = strings.TrimSuffix(strings.TrimSuffix(id, "/"), ".pdf")
		return strings.TrimSpace(id)
	}
	return ""
}
