package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves href against base, dropping any fragment.
func ResolveURL(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	ref.Fragment = ""
	return ref.String(), nil
}

// matchExtension returns the whitelisted extension the href's path ends with, lower-cased.
func matchExtension(href string, extensions []string) (string, bool) {
	p := href
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.ToLower(p)
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if ext != "" && strings.HasSuffix(p, ext) {
			return ext, true
		}
	}
	return "", false
}
