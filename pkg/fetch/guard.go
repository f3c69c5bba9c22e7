package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// GuardError reports a URL the guard refused to fetch.
type GuardError struct {
	URL    string
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("url %q rejected: %s", e.URL, e.Reason)
}

// URLGuard decides which URLs may be handed to a Fetcher. Host patterns are
// globs with '.' as the separator, so "*.example.com" matches one label and
// "**.example.com" matches any depth.
type URLGuard struct {
	allowedHosts []glob.Glob
	deniedHosts  []glob.Glob
}

// NewURLGuard compiles the allowed and denied host patterns.
func NewURLGuard(allowed, denied []string) (*URLGuard, error) {
	g := &URLGuard{}

	for _, pattern := range allowed {
		compiled, err := compileHostPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed host pattern '%s': %w", pattern, err)
		}
		g.allowedHosts = append(g.allowedHosts, compiled)
	}

	for _, pattern := range denied {
		compiled, err := compileHostPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied host pattern '%s': %w", pattern, err)
		}
		g.deniedHosts = append(g.deniedHosts, compiled)
	}

	return g, nil
}

func compileHostPattern(pattern string) (glob.Glob, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if err := checkBalanced(pattern); err != nil {
		return nil, err
	}
	return glob.Compile(pattern, '.')
}

// checkBalanced rejects unclosed '[' classes and '{' alternations, which
// glob.Compile accepts for some inputs and then never matches.
func checkBalanced(pattern string) error {
	braces := 0
	inClass := false

	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == ']':
			return fmt.Errorf("unexpected ']' at offset %d", i)
		case c == '{':
			braces++
		case c == '}':
			if braces == 0 {
				return fmt.Errorf("unexpected '}' at offset %d", i)
			}
			braces--
		}
	}

	if inClass {
		return fmt.Errorf("unclosed '['")
	}
	if braces > 0 {
		return fmt.Errorf("unclosed '{'")
	}
	return nil
}

// Check returns a *GuardError when rawURL is not an absolute http(s) URL or
// its host is denied or missing from a non-empty allow list.
func (g *URLGuard) Check(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &GuardError{URL: rawURL, Reason: err.Error()}
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return &GuardError{URL: rawURL, Reason: "missing scheme, expected http or https"}
	default:
		return &GuardError{URL: rawURL, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &GuardError{URL: rawURL, Reason: "missing host"}
	}

	if g == nil {
		return nil
	}

	// Denied patterns take precedence
	for _, pattern := range g.deniedHosts {
		if pattern.Match(host) {
			return &GuardError{URL: rawURL, Reason: fmt.Sprintf("host %q is denied", host)}
		}
	}

	if len(g.allowedHosts) == 0 {
		return nil
	}

	for _, pattern := range g.allowedHosts {
		if pattern.Match(host) {
			return nil
		}
	}

	return &GuardError{URL: rawURL, Reason: fmt.Sprintf("host %q is not in the allow list", host)}
}
