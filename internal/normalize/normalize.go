// Package normalize cleans individual listing fields. Every function is pure
// and idempotent: applying it twice gives the same result as applying it once.
package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	phoneDisallowed = regexp.MustCompile(`[^0-9+\-() ]`)
	multiSpace      = regexp.MustCompile(`\s+`)
	schemeRe        = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)
)

// Text folds the string to NFC, replaces non-breaking spaces and collapses
// runs of whitespace.
func Text(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\u202f", " ")
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// Phone keeps digits, '+', '-', '(', ')' and spaces, then collapses
// whitespace. Other characters are removed. A leading "tel:" scheme is dropped.
func Phone(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "tel:") {
		s = s[len("tel:"):]
	}
	s = phoneDisallowed.ReplaceAllString(s, "")
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// Email lowercases and trims the address, dropping a "mailto:" prefix.
func Email(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for strings.HasPrefix(s, "mailto:") {
		s = strings.TrimSpace(s[len("mailto:"):])
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// URL prefixes "https://" when no scheme is present and strips trailing
// slashes. Google redirect links (/url?q=...) are unwrapped until the target
// is no longer a redirect; each hop is cleaned before it is inspected.
func URL(s string) string {
	s = cleanURL(s)
	for s != "" {
		next := cleanURL(unwrapRedirect(s))
		if next == s {
			break
		}
		s = next
	}
	return s
}

// cleanURL adds the default scheme and trims trailing slashes and spaces.
func cleanURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	scheme := schemeRe.FindString(s)
	if scheme == "" {
		s = "https://" + strings.TrimLeft(s, "/")
		scheme = "https://"
	}

	rest := strings.TrimRight(s[len(scheme):], "/ \t\r\n")
	if rest == "" {
		return ""
	}
	return s[:len(scheme)] + rest
}

// unwrapRedirect returns the target of a google.com/url?q= link, or s when it
// is not one. The target is always shorter than s, so repeated unwrapping ends.
func unwrapRedirect(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Path != "/url" || !isGoogleHost(u.Hostname()) {
		return s
	}
	target := u.Query().Get("q")
	if target == "" {
		target = u.Query().Get("url")
	}
	if strings.TrimSpace(target) == "" {
		return s
	}
	return target
}

func isGoogleHost(host string) bool {
	host = strings.ToLower(host)
	return host == "google.com" || strings.HasSuffix(host, ".google.com")
}
