// Package urlnorm canonicalizes page URLs into stable note-collection keys.
package urlnorm

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Rule decides whether the query string is part of a page's identity.
// Pattern is matched against the canonical URL: lowercased origin, path and,
// when present, the sorted query string. The fragment never takes part.
type Rule struct {
	Pattern      *regexp.Regexp
	IncludeQuery bool
}

// DefaultRules is the built-in rule table. Order is significant: the first
// matching rule wins.
var DefaultRules = []Rule{
	{Pattern: regexp.MustCompile(`google\.[a-z.]+/search`), IncludeQuery: true},
	{Pattern: regexp.MustCompile(`youtube\.com/(watch|results)`), IncludeQuery: true},
	{Pattern: regexp.MustCompile(`amazon\.[a-z.]+/.*/dp/`), IncludeQuery: true},
	{Pattern: regexp.MustCompile(`wikipedia\.org/wiki/`), IncludeQuery: false},
	{Pattern: regexp.MustCompile(`github\.com/[^/]+/[^/]+/?$`), IncludeQuery: false},
}

// Normalizer maps page URLs to canonical keys using an ordered rule table.
type Normalizer struct {
	rules []Rule
}

// New returns a Normalizer evaluating rules in the given order.
// A nil slice means no rule matches and every query string is dropped.
func New(rules []Rule) *Normalizer {
	return &Normalizer{rules: slices.Clone(rules)}
}

// Default returns a Normalizer with DefaultRules.
func Default() *Normalizer {
	return New(DefaultRules)
}

// CompileRules builds rules from pattern strings, preserving order.
func CompileRules(patterns []string, include []bool) ([]Rule, error) {
	if len(patterns) != len(include) {
		return nil, fmt.Errorf("urlnorm: %d patterns but %d flags", len(patterns), len(include))
	}
	out := make([]Rule, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("urlnorm: rule %d: %w", i, err)
		}
		out = append(out, Rule{Pattern: re, IncludeQuery: include[i]})
	}
	return out, nil
}

// Normalize returns the canonical key for raw. It never fails: input that
// does not parse as an absolute URL is returned unchanged.
func (n *Normalizer) Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	base := origin(u) + pathOf(u)
	query := sortedQuery(u.RawQuery)
	candidate := base
	if query != "" {
		candidate += "?" + query
	}
	if query == "" || !n.includeQuery(candidate) {
		return base
	}
	return candidate
}

// includeQuery reports the flag of the first rule matching candidate.
func (n *Normalizer) includeQuery(candidate string) bool {
	for _, r := range n.rules {
		if r.Pattern != nil && r.Pattern.MatchString(candidate) {
			return r.IncludeQuery
		}
	}
	return false
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host += ":" + port
	}
	return scheme + "://" + host
}

func pathOf(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

// sortedQuery rebuilds a query string with every key=value pair
// form-encoded and the pairs sorted by their serialized form.
func sortedQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var pairs []string
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		pairs = append(pairs, url.QueryEscape(unescape(k))+"="+url.QueryEscape(unescape(v)))
	}
	slices.Sort(pairs)
	return strings.Join(pairs, "&")
}

func unescape(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}

// Domain returns the host portion of raw without a port, or "unknown" when
// raw is not an absolute URL.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
