package extract

import (
	"net/url"
	"strings"
)

// Strategy names, in escalation order.
const (
	StrategyPrimary = "primary"
	StrategySearch  = "search"
	StrategyMap     = "map"
)

// queryPlaceholder marks where the escaped search text goes in a base URL.
// Base URLs without it get the text appended.
const queryPlaceholder = "{query}"

// strategy is one way of reaching a list of results.
type strategy struct {
	name       string
	baseURL    string
	iterations int
	stagnation int
}

func (s strategy) url(text string) string {
	q := url.QueryEscape(text)
	if strings.Contains(s.baseURL, queryPlaceholder) {
		return strings.ReplaceAll(s.baseURL, queryPlaceholder, q)
	}
	return s.baseURL + q
}

// strategies returns the escalation chain: the full list view first, then
// the lighter local-search view, then the plain map view. Strategies with no
// base URL are skipped.
func (e *Engine) strategies() []strategy {
	all := []strategy{
		{StrategyPrimary, e.cfg.PrimaryURL, e.cfg.MaxIterations, e.cfg.StagnationLimit},
		{StrategySearch, e.cfg.SearchURL, e.cfg.FallbackIterations, e.cfg.FallbackStagnation},
		{StrategyMap, e.cfg.MapURL, e.cfg.FallbackIterations, e.cfg.FallbackStagnation},
	}
	out := all[:0]
	for _, s := range all {
		if s.baseURL != "" {
			out = append(out, s)
		}
	}
	return out
}

// resolveLink makes a card href absolute against the page it came from.
func resolveLink(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
